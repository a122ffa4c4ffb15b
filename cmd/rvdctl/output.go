package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

type output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// print writes rows as a table, or jsonData in JSON mode.
func (o *output) print(headers []string, rows [][]string, jsonData any) error {
	if o.jsonMode {
		enc := json.NewEncoder(o.w)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonData)
	}

	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func (o *output) success(msg string) {
	fmt.Fprintln(o.errW, msg)
}
