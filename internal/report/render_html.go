package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	htmltemplate "html/template"
	"strings"
)

func getHtmlReportBegin(hostName string) string {
	var sb strings.Builder
	sb.WriteString(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>pstatectl</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <link rel="stylesheet" href="https://unpkg.com/normalize.css@8.0.1/normalize.css" integrity="sha384-M86HUGbBFILBBZ9ykMAbT3nVb0+2C7yZlF8X2CiKNpDOQjKroMJqIeGZ/Le8N2Qp" crossorigin="anonymous" referrerpolicy="no-referrer" />
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/purecss@3.0.0/build/pure-min.css" integrity="sha384-X38yfunGUhNzHpBaEBsWLO+A0HDYOQi8ufWDkZ0k9e0eXz/tH3II7uKZ9msv++Ls" crossorigin="anonymous" referrerpolicy="no-referrer" />
    <style>
        .content {
            padding: 0 2em;
            line-height: 1.6em;
        }
        .content h2 {
            font-weight: 300;
            color: #888;
        }
        .content table {
            margin-bottom: 1em;
        }
    </style>
</head>
<body>
<div class="content">
`)
	sb.WriteString(`<h1>` + htmltemplate.HTMLEscapeString(hostName) + `</h1>
`)
	return sb.String()
}

func getHtmlReportEnd() string {
	return `</div>
</body>
</html>
`
}

func createHtmlReport(allTableValues []TableValues, hostName string) (out []byte, err error) {
	var sb strings.Builder
	sb.WriteString(getHtmlReportBegin(hostName))
	for _, tableValues := range allTableValues {
		sb.WriteString(`<h2>` + htmltemplate.HTMLEscapeString(tableValues.Name) + `</h2>
`)
		if len(tableValues.Fields) == 0 || len(tableValues.Fields[0].Values) == 0 {
			msg := NoDataFound
			if tableValues.NoDataFound != "" {
				msg = tableValues.NoDataFound
			}
			sb.WriteString(`<p>` + htmltemplate.HTMLEscapeString(msg) + `</p>
`)
			continue
		}
		sb.WriteString(renderHTMLTableValues(tableValues))
		sb.WriteString("\n")
	}
	sb.WriteString(getHtmlReportEnd())
	out = []byte(sb.String())
	return
}

// fieldNameWithDescription creates HTML for a field name with an optional
// description tooltip
func fieldNameWithDescription(fieldName, description string) string {
	if description == "" {
		return htmltemplate.HTMLEscapeString(fieldName)
	}
	return `<span title="` + htmltemplate.HTMLEscapeString(description) + `">` + htmltemplate.HTMLEscapeString(fieldName) + `</span>`
}

func renderHTMLTable(tableHeaders []string, tableValues [][]string, class string, valuesStyle [][]string) string {
	var sb strings.Builder
	sb.WriteString(`<table class="` + class + `">`)
	if len(tableHeaders) > 0 {
		sb.WriteString(`<thead>`)
		sb.WriteString(`<tr>`)
		for _, label := range tableHeaders {
			sb.WriteString(`<th>` + label + `</th>`)
		}
		sb.WriteString(`</tr>`)
		sb.WriteString(`</thead>`)
	}
	sb.WriteString(`<tbody>`)
	for rowIdx, rowValues := range tableValues {
		sb.WriteString(`<tr>`)
		for colIdx, value := range rowValues {
			var style string
			if len(valuesStyle) > rowIdx && len(valuesStyle[rowIdx]) > colIdx {
				style = ` style="` + valuesStyle[rowIdx][colIdx] + `"`
			}
			sb.WriteString(`<td` + style + `>` + value + `</td>`)
		}
		sb.WriteString(`</tr>`)
	}
	sb.WriteString(`</tbody>`)
	sb.WriteString(`</table>`)
	return sb.String()
}

func renderHTMLTableValues(tableValues TableValues) string {
	if tableValues.HasRows { // print the field names as column headings across the top of the table
		headers := []string{}
		for _, field := range tableValues.Fields {
			headers = append(headers, fieldNameWithDescription(field.Name, field.Description))
		}
		values := [][]string{}
		for row := range tableValues.Fields[0].Values {
			rowValues := []string{}
			for _, field := range tableValues.Fields {
				rowValues = append(rowValues, htmltemplate.HTMLEscapeString(field.Values[row]))
			}
			values = append(values, rowValues)
		}
		return renderHTMLTable(headers, values, "pure-table pure-table-striped", [][]string{})
	}
	// print the field name followed by its value
	values := [][]string{}
	var tableValueStyles [][]string
	for _, field := range tableValues.Fields {
		rowValues := []string{fieldNameWithDescription(field.Name, field.Description)}
		if len(field.Values) > 0 {
			rowValues = append(rowValues, htmltemplate.HTMLEscapeString(field.Values[0]))
		} else {
			rowValues = append(rowValues, "")
		}
		values = append(values, rowValues)
		tableValueStyles = append(tableValueStyles, []string{"font-weight:bold"})
	}
	return renderHTMLTable([]string{}, values, "pure-table pure-table-striped", tableValueStyles)
}
