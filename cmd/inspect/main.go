package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// Read-only viewer over the engine's store, for debugging a running or
// stopped instance. BypassLockGuard allows opening while the server
// holds the directory lock.
func main() {
	dbPath := flag.String("db", "./badger", "Path to badger DB")
	prefix := flag.String("prefix", "", "Key prefix to scan (gmsg:, dmsg:, group:, notif:, user:)")
	flag.Parse()

	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	header := color.New(color.BgBlack, color.FgGreen).Render(
		fmt.Sprintf(" campus-chat store %s ", *dbPath))
	fmt.Println(header)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Time", "Detail"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			// Secondary indexes carry no readable payload.
			if strings.HasPrefix(key, "idx:") || strings.HasPrefix(key, "msgref:") {
				continue
			}
			err := item.Value(func(val []byte) error {
				table.Append(rowFor(key, val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
	table.Render()
}

func rowFor(key string, val []byte) []string {
	kind := "RAW"
	switch {
	case strings.HasPrefix(key, "gmsg:"):
		kind = "GROUP MSG"
	case strings.HasPrefix(key, "dmsg:"):
		kind = "DIRECT MSG"
	case strings.HasPrefix(key, "group:"):
		kind = "GROUP"
	case strings.HasPrefix(key, "notif:"):
		kind = "NOTIFICATION"
	case strings.HasPrefix(key, "user:"):
		kind = "USER"
	}
	return []string{key, kind, keyTime(key), detail(val)}
}

// keyTime extracts the zero-padded UnixNano segment, when the key has one.
func keyTime(key string) string {
	for _, part := range strings.Split(key, ":") {
		if len(part) == 19 {
			if nano, err := strconv.ParseInt(part, 10, 64); err == nil {
				return time.Unix(0, nano).UTC().Format("15:04:05")
			}
		}
	}
	return "--:--:--"
}

// detail renders the JSON value compacted, truncated for readability.
func detail(val []byte) string {
	var compact bytes.Buffer
	if err := json.Compact(&compact, val); err != nil {
		return fmt.Sprintf("Size: %d bytes", len(val))
	}
	s := compact.String()
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}
