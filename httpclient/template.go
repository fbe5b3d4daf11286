package httpclient

import "strings"

// ExpandTemplate substitutes `{name}` placeholders in template with the
// escaped value of the matching query-scalar arg and marks that arg used.
//
// Braces are matched by parity: a run of `{{` is a literal escape and is
// written out unchanged, so `{{id}}` never substitutes. Placeholders that
// match no arg, and an unterminated `{`, are left as literal text.
func ExpandTemplate(template string, args []Arg) string {
	if !strings.Contains(template, "{") {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); {
		if template[i] != '{' {
			b.WriteByte(template[i])
			i++
			continue
		}

		run := 0
		for i+run < len(template) && template[i+run] == '{' {
			run++
		}
		escaped := run - run%2
		b.WriteString(template[i : i+escaped])
		i += escaped
		if run%2 == 0 {
			continue
		}

		end := strings.IndexByte(template[i+1:], '}')
		if end < 0 {
			b.WriteString(template[i:])
			break
		}

		name := template[i+1 : i+1+end]
		span := template[i : i+end+2]
		i += end + 2

		if arg := findTemplateArg(args, name); arg != nil {
			b.WriteString(arg.Escaped())
			arg.MarkUsed()
			continue
		}
		b.WriteString(span)
	}

	return b.String()
}

func findTemplateArg(args []Arg, name string) Arg {
	if name == "" {
		return nil
	}
	for _, a := range args {
		if a != nil && a.Kind() == ArgQueryScalar && a.Name() == name {
			return a
		}
	}
	return nil
}
