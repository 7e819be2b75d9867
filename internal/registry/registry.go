// Package registry turns raw target configuration into validated descriptors.
package registry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
)

// Kind is the backend family a target belongs to.
type Kind string

const (
	KindPostgres Kind = "postgres"
	KindMySQL    Kind = "mysql"
	KindMongo    Kind = "mongodb"
	KindSQLite   Kind = "sqlite"
)

// Relational reports whether the kind is served by the SQL adapter.
func (k Kind) Relational() bool {
	return k == KindPostgres || k == KindMySQL || k == KindSQLite
}

const defaultIdent = "meteo"

var kindAliases = map[string]Kind{
	"postgres":    KindPostgres,
	"postgresql":  KindPostgres,
	"cockroachdb": KindPostgres,
	"yugabyte":    KindPostgres,
	"supabase":    KindPostgres,
	"neon":        KindPostgres,
	"aiven_pg":    KindPostgres,
	"cratedb":     KindPostgres,
	"mysql":       KindMySQL,
	"mariadb":     KindMySQL,
	"tidb":        KindMySQL,
	"tidbcloud":   KindMySQL,
	"mongodb":     KindMongo,
	"mongo":       KindMongo,
	"sqlite":      KindSQLite,
	"sqlite3":     KindSQLite,
}

var identPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// TargetDescriptor is one validated storage destination. Identifiers are safe
// to interpolate into generated statements.
type TargetDescriptor struct {
	Name string `json:"name" validate:"required"`
	Kind Kind   `json:"kind" validate:"oneof=postgres mysql mongodb sqlite"`

	DSN   string `json:"-" validate:"required_unless=Kind mongodb"`
	Table string `json:"table,omitempty" validate:"required_unless=Kind mongodb,ident"`

	URI        string `json:"-" validate:"required_if=Kind mongodb"`
	Database   string `json:"database,omitempty" validate:"required_if=Kind mongodb,ident"`
	Collection string `json:"collection,omitempty" validate:"required_if=Kind mongodb,ident"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Empty identifiers are left to the required_* tags.
	_ = v.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || identPattern.MatchString(s)
	})
	return v
}

// LookupEnv resolves dsn_env/uri_env indirections. os.LookupEnv satisfies it.
type LookupEnv func(key string) (string, bool)

// Parse validates raw descriptors. Valid targets are returned in input order;
// invalid ones are reported by name (index-suffixed when the name repeats) and
// excluded. Duplicate valid names are kept as distinct targets.
func Parse(raw []map[string]any, lookupEnv LookupEnv) ([]TargetDescriptor, map[string]error) {
	var targets []TargetDescriptor
	invalid := make(map[string]error)

	for i, entry := range raw {
		d, err := parseOne(i, entry, lookupEnv)
		if err != nil {
			key := d.Name
			if _, taken := invalid[key]; taken {
				key = fmt.Sprintf("%s#%d", d.Name, i+1)
			}
			invalid[key] = err
			continue
		}
		targets = append(targets, d)
	}
	return targets, invalid
}

func parseOne(i int, entry map[string]any, lookupEnv LookupEnv) (TargetDescriptor, error) {
	d := TargetDescriptor{Name: str(entry, "name")}
	if d.Name == "" {
		d.Name = fmt.Sprintf("db%d", i+1)
	}

	typ := strings.ToLower(str(entry, "type"))
	if typ == "" {
		typ = string(KindPostgres)
	}
	kind, ok := kindAliases[typ]
	if !ok {
		return d, fmt.Errorf("target %s: unknown type %q: %w", d.Name, typ, domain.ErrInvalidTarget)
	}
	d.Kind = kind

	if kind.Relational() {
		d.DSN = resolve(entry, "dsn", "dsn_env", lookupEnv)
		d.Table = strOr(entry, "table", defaultIdent)
	} else {
		d.URI = resolve(entry, "uri", "uri_env", lookupEnv)
		d.Database = strOr(entry, "database", defaultIdent)
		d.Collection = strOr(entry, "collection", defaultIdent)
	}

	if err := validate.Struct(d); err != nil {
		return d, fmt.Errorf("target %s: %s: %w", d.Name, describe(err), domain.ErrInvalidTarget)
	}
	return d, nil
}

// describe flattens validator errors without echoing field values, since
// connection strings carry credentials.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "ident":
			parts = append(parts, fmt.Sprintf("%s %q is not a valid identifier", strings.ToLower(fe.Field()), fe.Value()))
		case "required_if", "required_unless":
			field := strings.ToLower(fe.Field())
			if field == "dsn" || field == "uri" {
				parts = append(parts, fmt.Sprintf("empty %s (set %s or %s_env)", field, field, field))
			} else {
				parts = append(parts, "empty "+field)
			}
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// resolve returns the literal value when set, else the named env variable.
func resolve(entry map[string]any, valueKey, envKey string, lookupEnv LookupEnv) string {
	if v := str(entry, valueKey); v != "" {
		return v
	}
	name := str(entry, envKey)
	if name == "" || lookupEnv == nil {
		return ""
	}
	v, _ := lookupEnv(name)
	return strings.TrimSpace(v)
}

func str(entry map[string]any, key string) string {
	s, _ := entry[key].(string)
	return strings.TrimSpace(s)
}

// strOr applies def only when key is absent; an explicit "" stays empty and
// fails validation.
func strOr(entry map[string]any, key, def string) string {
	if _, ok := entry[key]; !ok {
		return def
	}
	return str(entry, key)
}
