package main

// Filename: main.go
// Usage: go run main.go [flags] <data-dir>
// Example: go run main.go --backend rocksdb /data/chainstore
//
// Opens a store read-only and prints its state: format version, chain
// head, record log segment inventory, and per-column-family key counts.
// With --block <hex-hash> it prints one block. With --compact it runs a
// manual compaction (opens the store read-write).

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/karthikiyer56/chainstore"
	"github.com/karthikiyer56/chainstore/helpers"
	"github.com/karthikiyer56/chainstore/pkg/logging"
	"github.com/karthikiyer56/chainstore/pkg/types"
)

func main() {
	backend := flag.String("backend", chainstore.BackendRocksDB, "indexed store backend (rocksdb | mdbx)")
	blockHex := flag.String("block", "", "print the block with this hex hash")
	compact := flag.Bool("compact", false, "run a manual index compaction before inspecting")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: chainstore-inspect [flags] <data-dir>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	dataDir := flag.Arg(0)

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		log.Fatalf("Error: data directory does not exist: %s", dataDir)
	}

	cfg := &chainstore.Config{
		DataDir:  dataDir,
		Backend:  *backend,
		ReadOnly: !*compact,
	}

	store, err := chainstore.Open(cfg, logging.Discard())
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	if *compact {
		fmt.Println("Running index compaction...")
		if err := store.CompactIndex(context.Background()); err != nil {
			log.Fatalf("Compaction failed: %v", err)
		}
	}

	fmt.Printf("\n========================================\n")
	fmt.Printf("Store: %s (backend: %s)\n", dataDir, cfg.Backend)
	fmt.Printf("========================================\n")

	printHead(store)
	printSegments(store)
	printDirSizes(cfg)

	if *blockHex != "" {
		printBlock(store, *blockHex)
	}
}

func printHead(store *chainstore.Store) {
	hash, level, found, err := store.Blocks().Head()
	if err != nil {
		log.Fatalf("Failed to read chain head: %v", err)
	}
	if !found {
		fmt.Printf("\nChain head: (empty store)\n")
		return
	}
	fmt.Printf("\nChain head:\n")
	fmt.Printf("  Level: %d\n", level)
	fmt.Printf("  Hash:  %s\n", hash)
}

func printSegments(store *chainstore.Store) {
	fmt.Printf("\nRecord logs:\n")
	for name, count := range store.SegmentCounts() {
		fmt.Printf("  %-12s %d segment(s)\n", name, count)
	}
}

func printDirSizes(cfg *chainstore.Config) {
	fmt.Printf("\nOn-disk sizes:\n")
	for _, sub := range []string{"blocks", "operations", "actions", "index"} {
		dir := filepath.Join(cfg.DataDir, sub)
		if !helpers.IsDir(dir) {
			continue
		}
		fmt.Printf("  %-12s %s\n", sub, helpers.FormatBytes(helpers.GetDirSize(dir)))
	}
}

func printBlock(store *chainstore.Store, blockHex string) {
	raw, err := hex.DecodeString(blockHex)
	if err != nil {
		log.Fatalf("Invalid block hash %q: %v", blockHex, err)
	}
	hash, ok := types.HashFromBytes(raw)
	if !ok {
		log.Fatalf("Invalid block hash %q: expected %d bytes", blockHex, types.HashSize)
	}

	header, found, err := store.Blocks().GetBlock(hash)
	if err != nil {
		log.Fatalf("Failed to read block: %v", err)
	}
	if !found {
		fmt.Printf("\nBlock %s not found\n", blockHex)
		return
	}
	meta, _, err := store.Blocks().GetMetadata(hash)
	if err != nil {
		log.Fatalf("Failed to read block metadata: %v", err)
	}
	bytes, _, err := store.Blocks().GetBlockRaw(hash)
	if err != nil {
		log.Fatalf("Failed to read block bytes: %v", err)
	}

	fmt.Printf("\n========================================\n")
	fmt.Printf("Block %s\n", blockHex)
	fmt.Printf("========================================\n")
	fmt.Printf("  Level:        %d\n", header.Level)
	fmt.Printf("  Predecessor:  %s\n", header.Predecessor)
	fmt.Printf("  Timestamp:    %v\n", header.Timestamp)
	fmt.Printf("  Status:       %s\n", meta.Status)
	fmt.Printf("  Main chain:   %v\n", meta.IsMainChain)
	fmt.Printf("  Successors:   %d\n", len(meta.Successors))
	fmt.Printf("  Raw size:     %s\n", helpers.FormatBytes(int64(len(bytes))))
}
