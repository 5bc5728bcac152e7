package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mumblechat/mumble/internal/api"
)

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func row(w io.Writer, cols ...any) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(c)
	}
	fmt.Fprintln(w, strings.Join(parts, "\t"))
}

// formatNS renders a unix-nanosecond timestamp in local time.
func formatNS(ns int64) string {
	if ns == 0 {
		return "-"
	}
	return time.Unix(0, ns).Local().Format("2006-01-02 15:04:05")
}

func preview(m *api.Message) string {
	if m == nil {
		return ""
	}
	return truncate(body(*m), 40)
}

func body(m api.Message) string {
	if text := m.Text(); text != "" {
		return sanitize(text)
	}
	return fmt.Sprintf("[%s, %d bytes]", m.ContentType, len(m.Payload))
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func printMessage(m api.Message) {
	sender := m.SenderName
	if sender == "" {
		sender = m.SenderID
	}
	fmt.Printf("[%s] %s: %s\n", formatNS(m.SentAt), sanitize(sender), body(m))
}
