package htmlutil

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Table is an html table flattened into a grid, cells covered by a rowspan
// or colspan repeat the text of the spanning cell.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Column returns the index of the first header containing substr
// (case-insensitive), or -1.
func (t Table) Column(substr string) int {
	substr = strings.ToLower(substr)
	for i, h := range t.Headers {
		if strings.Contains(strings.ToLower(h), substr) {
			return i
		}
	}
	return -1
}

// ExactColumn returns the index of the header equal to name, or -1.
func (t Table) ExactColumn(name string) int {
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

func spanAttr(cell *goquery.Selection, name string) int {
	n, err := strconv.Atoi(strings.TrimSpace(cell.AttrOr(name, "1")))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

type pendingSpan struct {
	value    string
	rowsLeft int
}

// ParseTable reads the first row of table as headers and expands every
// following row to the header width.
func ParseTable(table *goquery.Selection) Table {
	rows := table.Find("tr")
	if rows.Length() == 0 {
		return Table{}
	}

	var headers []string
	rows.First().Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		headers = append(headers, CleanText(cell.Text()))
	})
	width := len(headers)

	spans := make([]*pendingSpan, width)
	var data [][]string

	rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
		values := make([]string, width)
		filled := make([]bool, width)

		for idx := 0; idx < width; idx++ {
			span := spans[idx]
			if span == nil {
				continue
			}
			values[idx] = span.value
			filled[idx] = true
			span.rowsLeft--
			if span.rowsLeft <= 0 {
				spans[idx] = nil
			}
		}

		col := 0
		row.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			for col < width && filled[col] {
				col++
			}

			text := CleanText(cell.Text())
			colspan := spanAttr(cell, "colspan")
			rowspan := spanAttr(cell, "rowspan")

			for offset := 0; offset < colspan; offset++ {
				if col+offset >= width {
					break
				}
				values[col+offset] = text
				filled[col+offset] = true
				if rowspan > 1 {
					spans[col+offset] = &pendingSpan{value: text, rowsLeft: rowspan - 1}
				}
			}
			col += colspan
		})

		data = append(data, values)
	})

	return Table{Headers: headers, Rows: data}
}

// FindTable returns the first table in doc whose th cells satisfy match.
func FindTable(doc *goquery.Document, match func(headers []string) bool) (*goquery.Selection, bool) {
	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		var headers []string
		table.Find("th").Each(func(_ int, th *goquery.Selection) {
			headers = append(headers, strings.ToLower(CleanText(th.Text())))
		})
		if match(headers) {
			found = table
			return false
		}
		return true
	})
	return found, found != nil
}

// TableAfterHeading finds the first heading matching selector whose text
// contains title and returns the next table in document order.
func TableAfterHeading(doc *goquery.Document, selector, title string) (*goquery.Selection, bool) {
	title = strings.ToLower(title)

	var heading *goquery.Selection
	doc.Find(selector).EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(CleanText(h.Text())), title) {
			heading = h
			return false
		}
		return true
	})
	if heading == nil {
		return nil, false
	}

	// walk forward through the document from the heading
	var table *goquery.Selection
	passed := false
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !passed {
			if s.Get(0) == heading.Get(0) {
				passed = true
			}
			return true
		}
		if goquery.NodeName(s) == "table" {
			table = s
			return false
		}
		return true
	})
	return table, table != nil
}
