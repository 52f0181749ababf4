package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, []string{"Resource", "Ready", "Path"}, &TableOptions{NoColor: true})
	table.AddRow("morphology", "yes", "SP_PC/morphology.json")
	table.AddRow("factsheet", "no", "")
	table.AddRow("extra", "yes", "p", "dropped")

	if table.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", table.Len())
	}
	table.Render()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	want := []string{
		"Resource    Ready  Path",
		"──────────  ─────  ─────────────────────",
		"morphology  yes    SP_PC/morphology.json",
		"factsheet   no     ",
		"extra       yes    p",
	}
	if len(lines) != len(want) {
		t.Fatalf("Render() wrote %d lines, want %d:\n%s", len(lines), len(want), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf, nil, &TableOptions{NoColor: true}).Render()
	if buf.Len() != 0 {
		t.Errorf("table without headers wrote %q", buf.String())
	}

	buf.Reset()
	NewTable(&buf, []string{"A"}, nil).Render()
	if got := strings.Count(buf.String(), "\n"); got != 2 {
		t.Errorf("header-only table wrote %d lines, want 2", got)
	}
}

func TestTableUnicodeWidth(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, []string{"Name", "X"}, &TableOptions{NoColor: true})
	table.AddRow("µm", "1")
	table.Render()

	if !strings.Contains(buf.String(), "µm    1") {
		t.Errorf("cells should pad by rune count:\n%s", buf.String())
	}
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKeyValueTable(&buf, true)
	kv.AddRow("view", "test/pathway")
	kv.AddRow("complete", "true")
	kv.Render()

	want := "view:     test/pathway\ncomplete: true\n"
	if buf.String() != want {
		t.Errorf("Render() = %q, want %q", buf.String(), want)
	}
}

func TestList(t *testing.T) {
	var buf bytes.Buffer
	list := NewList(&buf, ListOptions{NoColor: true})
	list.AddItem("SP")
	list.AddItem("SO")
	list.Render()
	if buf.String() != "• SP\n• SO\n" {
		t.Errorf("bulleted Render() = %q", buf.String())
	}

	buf.Reset()
	list = NewList(&buf, ListOptions{Numbered: true, NoColor: true})
	list.AddItem("SP")
	list.AddItem("SO")
	list.Render()
	if buf.String() != "1. SP\n2. SO\n" {
		t.Errorf("numbered Render() = %q", buf.String())
	}
}

func TestHeader(t *testing.T) {
	var buf bytes.Buffer
	Header(&buf, "Views", true)
	if buf.String() != "Views\n─────\n" {
		t.Errorf("Header() = %q", buf.String())
	}
}
