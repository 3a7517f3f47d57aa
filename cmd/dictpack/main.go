// Copyright 2025 The RxSuggest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command dictpack converts text drug-name lists into the binary chunk files
// (dict_0001.bin, dict_0002.bin, ...) that rxsuggest -dict can load from a directory.
//
//	dictpack -out data/ names.txt more_names.txt
//
// Names are de-duplicated case-insensitively and written in sorted order.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/rxsuggest/rxsuggest/internal/logger"
	"github.com/rxsuggest/rxsuggest/pkg/config"
	"github.com/rxsuggest/rxsuggest/pkg/dictionary"
)

func main() {
	outDir := flag.String("out", "data", "Directory to write chunk files into")
	chunkSize := flag.Int("chunk", config.DefaultConfig().Dict.ChunkSize, "Names per chunk file")
	bundled := flag.Bool("bundled", false, "Pack the bundled dictionary instead of input files")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: dictpack [flags] names.txt...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger.Setup(*debugMode)

	var dict *dictionary.Dictionary
	switch {
	case *bundled:
		dict = dictionary.Default()
	case flag.NArg() == 0:
		flag.Usage()
		os.Exit(2)
	default:
		dict = dictionary.New(nil)
		for _, path := range flag.Args() {
			names, err := dictionary.LoadFile(path)
			if err != nil {
				log.Fatalf("Failed to read %s: %v", path, err)
			}
			added := dict.Extend(names)
			log.Debugf("%s: %d names, %d new", path, len(names), added)
		}
	}

	if dict.Len() == 0 {
		log.Fatal("No names to pack")
	}

	files, err := dictionary.WriteChunks(*outDir, dict.Names(), *chunkSize)
	if err != nil {
		log.Fatalf("Failed to write chunks: %v", err)
	}
	log.Infof("Packed %d names into %d chunk files under %s", dict.Len(), len(files), *outDir)
}
