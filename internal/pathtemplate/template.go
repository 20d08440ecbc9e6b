// Package pathtemplate expands output file name templates. Templates refer to
// variables either by name, "(Year)", or by number, "{0}"; Normalize converts
// the former into the latter, which is the persisted form.
package pathtemplate

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Variable is a template variable
type Variable int

const (
	Year Variable = iota
	ShortYear
	Month
	Day
	Hour
	Minute
	Second
	Type
	Extension
	HomeDirectory
	PicturesDirectory
)

var names = map[Variable]string{
	Year:              "Year",
	ShortYear:         "ShortYear",
	Month:             "Month",
	Day:               "Day",
	Hour:              "Hour",
	Minute:            "Minute",
	Second:            "Second",
	Type:              "Type",
	Extension:         "Extension",
	HomeDirectory:     "HomeDirectory",
	PicturesDirectory: "PicturesDirectory",
}

func (v Variable) String() string {
	if n, ok := names[v]; ok {
		return n
	}
	return "Variable(" + strconv.Itoa(int(v)) + ")"
}

// Values maps variables to lazily evaluated values
type Values map[Variable]func() string

// Defaults returns the date/time and directory variables evaluated against now
func Defaults(now func() time.Time) Values {
	if now == nil {
		now = time.Now
	}
	return Values{
		Year:              func() string { return strconv.Itoa(now().Year()) },
		ShortYear:         func() string { return strconv.Itoa(now().Year())[2:] },
		Month:             func() string { return twoDigits(int(now().Month())) },
		Day:               func() string { return twoDigits(now().Day()) },
		Hour:              func() string { return twoDigits(now().Hour()) },
		Minute:            func() string { return twoDigits(now().Minute()) },
		Second:            func() string { return twoDigits(now().Second()) },
		HomeDirectory:     homeDirectory,
		PicturesDirectory: picturesDirectory,
	}
}

// With returns a copy of v with variable set to a constant
func (v Values) With(variable Variable, value string) Values {
	out := make(Values, len(v)+1)
	for k, f := range v {
		out[k] = f
	}
	out[variable] = func() string { return value }
	return out
}

// Normalize rewrites "(Name)" references into "{N}"
func Normalize(template string) string {
	for v, name := range names {
		template = strings.ReplaceAll(template, "("+name+")", "{"+strconv.Itoa(int(v))+"}")
	}
	return template
}

// Localize is the inverse of Normalize
func Localize(template string) string {
	for v, name := range names {
		template = strings.ReplaceAll(template, "{"+strconv.Itoa(int(v))+"}", "("+name+")")
	}
	return template
}

// Expand substitutes every "{N}" reference that has a value. Unknown
// references are left untouched.
func Expand(template string, values Values) string {
	for v, f := range values {
		token := "{" + strconv.Itoa(int(v)) + "}"
		if strings.Contains(template, token) {
			template = strings.ReplaceAll(template, token, f())
		}
	}
	return template
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func homeDirectory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func picturesDirectory() string {
	if dir := os.Getenv("XDG_PICTURES_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(homeDirectory(), "Pictures")
}
