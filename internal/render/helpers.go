package render

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
	"git.home.luguber.info/inful/mdsite/internal/frontmatter"
	"git.home.luguber.info/inful/mdsite/internal/markdown"
)

// DefaultDateLayout formats dates when `date` gets no layout argument.
const DefaultDateLayout = "January 2, 2006"

var dateInputs = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

type helperFunc func(e *Engine, args []frontmatter.Value) (frontmatter.Value, error)

var helpers = map[string]helperFunc{
	"upper": stringHelper(strings.ToUpper),
	"lower": stringHelper(strings.ToLower),
	"title": stringHelper(func(s string) string { return cases.Title(language.English).String(s) }),
	"date":  dateHelper,
	"relurl": func(e *Engine, args []frontmatter.Value) (frontmatter.Value, error) {
		s, err := scalarArg("relurl", args, 1)
		if err != nil {
			return frontmatter.Value{}, err
		}
		base := ""
		if e.cfg != nil {
			base = e.cfg.BaseURL
		}
		return frontmatter.String(markdown.RelativeURL(base, s)), nil
	},
	"json": func(_ *Engine, args []frontmatter.Value) (frontmatter.Value, error) {
		if len(args) != 1 {
			return frontmatter.Value{}, arity("json", 1, len(args))
		}
		data, err := json.Marshal(args[0])
		if err != nil {
			return frontmatter.Value{}, helperError{ferrors.WrapError(err, ferrors.CategoryTypeMismatch, "json encode failed")}
		}
		return frontmatter.String(string(data)), nil
	},
	"len": func(_ *Engine, args []frontmatter.Value) (frontmatter.Value, error) {
		if len(args) != 1 {
			return frontmatter.Value{}, arity("len", 1, len(args))
		}
		v := args[0]
		switch v.Kind() {
		case frontmatter.KindSequence:
			seq, _ := v.AsSequence()
			return frontmatter.Int(int64(len(seq))), nil
		case frontmatter.KindMapping:
			m, _ := v.AsMapping()
			return frontmatter.Int(int64(m.Len())), nil
		case frontmatter.KindString:
			s, _ := v.AsString()
			return frontmatter.Int(int64(utf8.RuneCountInString(s))), nil
		default:
			return frontmatter.Value{}, helperError{ferrors.TypeMismatch("len needs a string, sequence or mapping, got " + v.Kind().String())}
		}
	},
	// list_md writes markup in place; see run.listPages.
	"list_md": func(_ *Engine, _ []frontmatter.Value) (frontmatter.Value, error) {
		return frontmatter.Value{}, helperError{ferrors.TypeMismatch("list_md cannot be used as a filter")}
	},
}

// callHelper runs a helper by name. Errors are *ferrors.ErrorBuilder values
// wrapped in helperError so the caller can attach page context.
func callHelper(e *Engine, name string, args []frontmatter.Value) (frontmatter.Value, error) {
	h, ok := helpers[name]
	if !ok {
		return frontmatter.Value{}, helperError{ferrors.InternalError("unknown helper " + name)}
	}
	v, err := h(e, args)
	if err != nil {
		var he helperError
		if errors.As(err, &he) {
			return frontmatter.Value{}, he
		}
		return frontmatter.Value{}, helperError{ferrors.WrapError(err, ferrors.CategoryRuntime, name+" failed")}
	}
	return v, nil
}

type helperError struct{ b *ferrors.ErrorBuilder }

func (h helperError) Error() string { return h.b.Build().Error() }

func asBuilder(err error) *ferrors.ErrorBuilder {
	var he helperError
	if errors.As(err, &he) {
		return he.b
	}
	return ferrors.WrapError(err, ferrors.CategoryRuntime, "helper failed")
}

func stringHelper(fn func(string) string) helperFunc {
	return func(_ *Engine, args []frontmatter.Value) (frontmatter.Value, error) {
		s, err := scalarArg("string helper", args, 1)
		if err != nil {
			return frontmatter.Value{}, err
		}
		return frontmatter.String(fn(s)), nil
	}
}

func dateHelper(_ *Engine, args []frontmatter.Value) (frontmatter.Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return frontmatter.Value{}, arity("date", 1, len(args))
	}
	raw, ok := args[0].AsString()
	if !ok {
		return frontmatter.Value{}, helperError{ferrors.TypeMismatch("date needs a string, got " + args[0].Kind().String())}
	}
	layout := DefaultDateLayout
	if len(args) == 2 {
		l, isString := args[1].AsString()
		if !isString {
			return frontmatter.Value{}, helperError{ferrors.TypeMismatch("date layout must be a string")}
		}
		layout = l
	}
	for _, in := range dateInputs {
		if t, err := time.Parse(in, raw); err == nil {
			return frontmatter.String(t.Format(layout)), nil
		}
	}
	return frontmatter.Value{}, helperError{ferrors.TypeMismatch("cannot parse date "+raw).WithContext("value", raw)}
}

func scalarArg(name string, args []frontmatter.Value, want int) (string, error) {
	if len(args) != want {
		return "", arity(name, want, len(args))
	}
	s, ok := args[0].Scalar()
	if !ok {
		return "", helperError{ferrors.TypeMismatch(name + " needs a scalar, got " + args[0].Kind().String())}
	}
	return s, nil
}

func arity(name string, want, got int) error {
	return helperError{ferrors.TypeMismatch(name+" called with the wrong number of arguments").
		WithContext("want", want).WithContext("got", got)}
}
