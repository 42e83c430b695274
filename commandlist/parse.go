// Package commandlist reads command files, lists of experiment actions
// written as text or in a spreadsheet, and runs them on the instrument.
package commandlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnterminatedQuote is returned for a line with an open quote
	ErrUnterminatedQuote = errors.New("unterminated quote")

	// ErrNoSheet is returned for a workbook with no worksheets
	ErrNoSheet = errors.New("workbook has no sheets")
)

// ExcelLabelsRow is the 1-based row holding the column labels of an Excel
// command file.  Data starts on the next row.
const ExcelLabelsRow = 4

// Command is one action of a command file
type Command struct {
	Action     string
	Args       []string
	LineNumber int // 1-based
	Raw        string
}

// SplitQuoted splits line on white space, keeping text inside double or
// single quotes together.  The quotes are removed.
func SplitQuoted(line string) ([]string, error) {
	var (
		out   []string
		cur   strings.Builder
		quote rune
		inTok bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inTok = true
		case r == ' ' || r == '\t':
			if inTok {
				out = append(out, cur.String())
				cur.Reset()
				inTok = false
			}
		default:
			cur.WriteRune(r)
			inTok = true
		}
	}
	if quote != 0 {
		return nil, ErrUnterminatedQuote
	}
	if inTok {
		out = append(out, cur.String())
	}
	return out, nil
}

// ParseText reads a text command file.  Blank lines and lines starting with
// # are skipped; every other line is an action followed by its arguments.
func ParseText(r io.Reader) ([]Command, error) {
	var cmds []Command
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Text()
		row := strings.TrimSpace(raw)
		if row == "" || strings.HasPrefix(row, "#") {
			continue
		}
		words, err := SplitQuoted(row)
		if err != nil {
			return cmds, fmt.Errorf("line %d: %w", line, err)
		}
		if len(words) == 0 {
			continue
		}
		cmds = append(cmds, Command{
			Action:     words[0],
			Args:       words[1:],
			LineNumber: line,
			Raw:        strings.TrimRight(raw, " \t\r"),
		})
	}
	return cmds, sc.Err()
}

// ParseTextFile reads a text command file from disk
func ParseTextFile(filename string) ([]Command, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseText(f)
}

// ParseExcel reads the first sheet of a workbook.  Labels are on
// ExcelLabelsRow; each following row is a command until one whose first
// cell is empty.  Line numbers count data rows from 1.
func ParseExcel(r io.Reader) ([]Command, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	var cmds []Command
	if len(rows) <= ExcelLabelsRow {
		return cmds, nil
	}
	for i, row := range rows[ExcelLabelsRow:] {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			break
		}
		args := append([]string(nil), row[1:]...)
		for len(args) > 0 && strings.TrimSpace(args[len(args)-1]) == "" {
			args = args[:len(args)-1]
		}
		cmds = append(cmds, Command{
			Action:     row[0],
			Args:       args,
			LineNumber: i + 1,
			Raw:        strings.Join(row, " "),
		})
	}
	return cmds, nil
}

// ParseExcelFile reads an Excel command file from disk
func ParseExcelFile(filename string) ([]Command, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseExcel(f)
}

// GetCommandList reads filename as a workbook, or as text when it is not one
func GetCommandList(filename string) ([]Command, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, err
	}
	cmds, err := ParseExcelFile(filename)
	if err == nil {
		return cmds, nil
	}
	return ParseTextFile(filename)
}

// Table writes the commands as a line #, action, parameters table
func Table(w io.Writer, cmds []Command) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"line #", "action", "parameters"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, c := range cmds {
		table.Append([]string{strconv.Itoa(c.LineNumber), c.Action, strings.Join(c.Args, ", ")})
	}
	table.Render()
}

// TableString is Table rendered to a string
func TableString(cmds []Command) string {
	var b strings.Builder
	Table(&b, cmds)
	return b.String()
}

// Summarize writes the command file name and its command table to w
func Summarize(w io.Writer, filename string) error {
	cmds, err := GetCommandList(filename)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Command file: %s\n", filename)
	Table(w, cmds)
	return nil
}
