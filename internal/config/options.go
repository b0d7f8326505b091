// Package config resolves pgbackrest options through the four-tier
// precedence chain spec.md §6 defines: defaults, then
// PGBACKREST_<OPTION> environment variables, then ini config file
// sections ([global], [<stanza>], [global:<command>],
// [<stanza>:<command>]), then command-line flags, each tier
// overriding the previous one.
//
// The config file itself is plain scalar key=value data with no
// embedded-serialization byte-exactness requirement, unlike
// internal/info's checksum-sealed format, so gopkg.in/ini.v1 (a direct
// teacher dependency) is a genuine fit here rather than a forced one.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/ini.v1"
)

// Options resolves option names against the precedence chain for one
// stanza/command pair.
type Options struct {
	Stanza  string
	Command string

	defaults map[string]string
	file     *ini.File
	flags    map[string]string
}

// New builds an Options resolver. configPath may be empty, in which
// case the ini tier is skipped; defaults supplies the lowest-precedence
// value for every option name it names.
func New(configPath, stanza, command string, defaults map[string]string) (*Options, error) {
	o := &Options{
		Stanza:   stanza,
		Command:  command,
		defaults: defaults,
		flags:    map[string]string{},
	}

	if configPath == "" {
		o.file = ini.Empty()
		return o, nil
	}

	f, err := ini.Load(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			o.file = ini.Empty()
			return o, nil
		}
		return nil, errors.Annotatef(err, "load config file %q", configPath)
	}
	o.file = f
	return o, nil
}

// SetFlag records a command-line override for name, the
// highest-precedence tier.
func (o *Options) SetFlag(name, value string) {
	o.flags[name] = value
}

// BindFlags copies every flag the caller actually set on cmd into the
// resolver, matching flag names to option names one-to-one.
func (o *Options) BindFlags(cmd *cobra.Command) {
	cmd.Flags().Visit(func(f *pflag.Flag) {
		o.SetFlag(f.Name, f.Value.String())
	})
}

// envName converts an option name ("repo1-type") to its environment
// variable form (PGBACKREST_REPO1_TYPE).
func envName(name string) string {
	return "PGBACKREST_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// sections lists the ini sections to check, most to least specific.
func (o *Options) sections() []string {
	var out []string
	if o.Stanza != "" && o.Command != "" {
		out = append(out, o.Stanza+":"+o.Command)
	}
	if o.Stanza != "" {
		out = append(out, o.Stanza)
	}
	if o.Command != "" {
		out = append(out, "global:"+o.Command)
	}
	out = append(out, "global")
	return out
}

// Raw resolves name through the full precedence chain and reports
// whether it was set anywhere.
func (o *Options) Raw(name string) (string, bool) {
	if v, ok := o.flags[name]; ok {
		return v, true
	}
	for _, section := range o.sections() {
		sec, err := o.file.GetSection(section)
		if err != nil {
			continue
		}
		if sec.HasKey(name) {
			return sec.Key(name).String(), true
		}
	}
	if v, ok := os.LookupEnv(envName(name)); ok {
		return v, true
	}
	if v, ok := o.defaults[name]; ok {
		return v, true
	}
	return "", false
}

// String resolves a string option.
func (o *Options) String(name string) (string, bool) {
	return o.Raw(name)
}

// Bool resolves a boolean option. Besides strconv.ParseBool's forms it
// accepts y and n, in any case.
func (o *Options) Bool(name string) (value, set bool, err error) {
	v, ok := o.Raw(name)
	if !ok {
		return false, false, nil
	}
	switch strings.ToLower(v) {
	case "y":
		return true, true, nil
	case "n":
		return false, true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, true, errors.Annotatef(err, "option %q", name)
	}
	return b, true, nil
}

// Int resolves an integer option.
func (o *Options) Int(name string) (value int, set bool, err error) {
	v, ok := o.Raw(name)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, true, errors.Annotatef(err, "option %q", name)
	}
	return n, true, nil
}

// Size resolves a size option (decimal with an optional K/M/G/T
// suffix).
func (o *Options) Size(name string) (value int64, set bool, err error) {
	v, ok := o.Raw(name)
	if !ok {
		return 0, false, nil
	}
	n, err := ParseSize(v)
	if err != nil {
		return 0, true, errors.Annotatef(err, "option %q", name)
	}
	return n, true, nil
}

// Duration resolves a time-ms option into a time.Duration.
func (o *Options) Duration(name string) (value time.Duration, set bool, err error) {
	v, ok := o.Raw(name)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, true, errors.Annotatef(err, "option %q", name)
	}
	return time.Duration(n) * time.Millisecond, true, nil
}

// StringList resolves a repeatable/comma-separated option.
func (o *Options) StringList(name string) ([]string, bool) {
	v, ok := o.Raw(name)
	if !ok {
		return nil, false
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, true
}

// Hash resolves a --<opt>=key=value style option (repeatable uses
// joined with commas by BindFlags/SetFlag callers) into a map.
func (o *Options) Hash(name string) (map[string]string, bool, error) {
	v, ok := o.Raw(name)
	if !ok {
		return nil, false, nil
	}
	out := map[string]string{}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, true, errors.NotValidf("hash option %q entry %q", name, pair)
		}
		out[key] = value
	}
	return out, true, nil
}
