package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "GSTVRS_"

// option is one settable field of an options struct.
type option struct {
	value reflect.Value
	flag  string
	toml  string
	env   string
}

// LoadConfig fills opts, a pointer to a struct, from the TOML file named
// by its Config field and then from the environment. Fields whose flag was
// set on cmd's command line are left alone, so the precedence is flags,
// then environment, then file. A missing file is not an error.
//
// Fields opt in with `toml:"table.key"` and `env:"KEY"` tags; the env
// variable read is EnvPrefix+KEY. Values that do not fit the field type
// are reported together after every other field has been applied.
func LoadConfig(opts any, cmd *cobra.Command) error {
	fields, path := options(opts)
	changed := changedFlags(cmd)

	doc, err := readDocument(path)
	if err != nil {
		return err
	}

	var errs []error
	for _, o := range fields {
		if changed[o.flag] {
			continue
		}
		if doc != nil && o.toml != "" {
			if raw, ok := lookup(doc, o.toml); ok {
				if err := assign(o.value, raw); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", o.toml, err))
				}
			}
		}
		if o.env == "" {
			continue
		}
		if raw, ok := os.LookupEnv(EnvPrefix + o.env); ok && raw != "" {
			if err := assignString(o.value, raw); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, o.env, err))
			}
		}
	}
	return errors.Join(errs...)
}

func options(opts any) ([]option, string) {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	var (
		fields []option
		path   string
	)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Name == "Config" && f.Type.Kind() == reflect.String {
			path = v.Field(i).String()
			continue
		}
		fields = append(fields, option{
			value: v.Field(i),
			flag:  flagName(f),
			toml:  f.Tag.Get("toml"),
			env:   f.Tag.Get("env"),
		})
	}
	return fields, path
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	visit := func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	}
	cmd.Flags().VisitAll(visit)
	cmd.PersistentFlags().VisitAll(visit)
	return changed
}

func readDocument(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return doc, nil
}

// lookup walks a dotted path through nested tables.
func lookup(doc map[string]any, path string) (any, bool) {
	table := doc
	keys := strings.Split(path, ".")
	for _, key := range keys[:len(keys)-1] {
		next, ok := table[key].(map[string]any)
		if !ok {
			return nil, false
		}
		table = next
	}
	v, ok := table[keys[len(keys)-1]]
	return v, ok
}

func assign(field reflect.Value, raw any) error {
	switch field.Kind() {
	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("want a string, got %T", raw)
		}
		field.SetString(s)
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return fmt.Errorf("want a boolean, got %T", raw)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, ok := raw.(int64)
		if !ok {
			return fmt.Errorf("want an integer, got %T", raw)
		}
		field.SetInt(n)
	case reflect.Slice:
		items, ok := raw.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("want a list of strings, got %T", raw)
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("want a list of strings, found %T", item)
			}
			out = append(out, s)
		}
		field.Set(reflect.ValueOf(out))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// assignString parses an environment value. Lists are comma separated.
func assignString(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported list of %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// flagName is the humacli flag for a field: its name tag, or the field
// name in kebab case ("LoggingLevel" becomes "logging-level", "IDRInterval"
// becomes "idr-interval").
func flagName(f reflect.StructField) string {
	if name := f.Tag.Get("name"); name != "" {
		return name
	}
	return kebab(f.Name)
}

func kebab(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			acronymEnd := unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || acronymEnd {
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// LoadLoggingConfig reads the [logging] table. String keys other than
// level and format, and the keys of a [logging.modules] subtable, are
// module levels. Anything unreadable yields the defaults.
func LoadLoggingConfig(path string) logging.Config {
	cfg := logging.Config{Level: "info", Format: "text", Modules: make(map[string]string)}

	doc, err := readDocument(path)
	if err != nil || doc == nil {
		return cfg
	}
	table, _ := doc["logging"].(map[string]any)
	for key, raw := range table {
		switch v := raw.(type) {
		case string:
			switch key {
			case "level":
				cfg.Level = v
			case "format":
				cfg.Format = v
			default:
				cfg.Modules[key] = v
			}
		case map[string]any:
			if key != "modules" {
				continue
			}
			for module, level := range v {
				if s, ok := level.(string); ok {
					cfg.Modules[module] = s
				}
			}
		}
	}
	return cfg
}
