package entity

import (
	"maps"
	"slices"
	"strings"
)

// GenerateEntFile renders records in the Quake .ent text format, one
// brace-delimited block per record. The classname comes first and the
// remaining keys follow in sorted order. The format has no escape for
// double quotes, so they are written as single quotes.
//
// The output parses back with bsp.ParseEntities.
func GenerateEntFile(records []Record) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString("{\n")
		classname := r.Properties["classname"]
		if classname == "" {
			classname = r.Classname
		}
		writePair(&b, "classname", classname)
		for _, key := range slices.Sorted(maps.Keys(r.Properties)) {
			if key == "classname" {
				continue
			}
			writePair(&b, key, r.Properties[key])
		}
		b.WriteString("}\n")
	}
	return b.String()
}

var quotes = strings.NewReplacer(`"`, `'`)

func writePair(b *strings.Builder, key, value string) {
	b.WriteByte('"')
	quotes.WriteString(b, key) //nolint:errcheck // strings.Builder never fails
	b.WriteString(`" "`)
	quotes.WriteString(b, value) //nolint:errcheck // strings.Builder never fails
	b.WriteString("\"\n")
}
