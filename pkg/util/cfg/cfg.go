// Package cfg loads configuration from flags and YAML files.
package cfg

import (
	"flag"
	"os"
	"strings"

	"github.com/drone/envsubst"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Registerer is a configuration that registers its flags.
type Registerer interface {
	RegisterFlags(f *flag.FlagSet)
}

// Files lists configuration files given on the command line. The flag can
// be repeated or hold a comma separated list.
type Files []string

// String implements flag.Value.
func (f *Files) String() string {
	return strings.Join(*f, ",")
}

// Set implements flag.Value.
func (f *Files) Set(value string) error {
	for _, name := range strings.Split(value, ",") {
		if name = strings.TrimSpace(name); name != "" {
			*f = append(*f, name)
		}
	}
	return nil
}

// Parse fills dst from args. Defaults come from the flags registered by dst,
// then the files named by -config.file are applied in order, then flags
// given in args override both.
func Parse(fs *flag.FlagSet, dst Registerer, args []string) error {
	var (
		files     Files
		expandEnv bool
	)
	fs.Var(&files, "config.file", "YAML configuration file to load. Can be repeated.")
	fs.BoolVar(&expandEnv, "config.expand-env", false, "Expand ${VAR} references in configuration files with environment variables.")
	dst.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing flags")
	}

	for _, name := range files {
		if err := YAML(name, expandEnv, dst); err != nil {
			return err
		}
	}

	// Parsing again appends to files, which were already loaded.
	return errors.Wrap(fs.Parse(args), "parsing flags")
}

// YAML decodes the file at path into dst. Unknown fields are rejected.
func YAML(path string, expandEnv bool, dst any) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading config file")
	}
	return errors.Wrapf(YAMLBytes(buf, expandEnv, dst), "loading %s", path)
}

// YAMLBytes decodes buf into dst. Unknown fields are rejected.
func YAMLBytes(buf []byte, expandEnv bool, dst any) error {
	if expandEnv {
		s, err := envsubst.EvalEnv(string(buf))
		if err != nil {
			return errors.Wrap(err, "expanding environment variables")
		}
		buf = []byte(s)
	}
	return errors.Wrap(yaml.UnmarshalStrict(buf, dst), "parsing config")
}
