package database

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/mattn/go-sqlite3"
)

// ErrInvalidFunction is returned when a function cannot be registered
// because of its own definition (nil implementation, negative arity).
var ErrInvalidFunction = errors.New("database: invalid function definition")

// ScalarFunc implements an SQL scalar function. args has exactly the arity
// given at registration. Arguments arrive as int64, float64, string,
// []byte or nil; the result may be any of those types, bool or nil.
type ScalarFunc func(args ...any) (any, error)

// FunctionOption customises RegisterFunction.
type FunctionOption func(*functionOptions)

type functionOptions struct {
	deterministic bool
}

// Deterministic marks the function as pure so SQLite may use it in indexes
// and constant-fold calls.
func Deterministic() FunctionOption {
	return func(o *functionOptions) {
		o.deterministic = true
	}
}

var (
	anyType   = reflect.TypeFor[any]()
	errorType = reflect.TypeFor[error]()
)

// RegisterFunction makes fn callable as name(arg1, ..., argN) with N = arity
// in later statements. Registration belongs to this Database's connection
// and is lost on Close.
func (d *Database) RegisterFunction(ctx context.Context, name string, arity int, fn ScalarFunc, opts ...FunctionOption) error {
	if fn == nil {
		return fmt.Errorf("registering function %s: %w: nil implementation", name, ErrInvalidFunction)
	}
	if arity < 0 {
		return fmt.Errorf("registering function %s: %w: negative arity %d", name, ErrInvalidFunction, arity)
	}

	var o functionOptions
	for _, opt := range opts {
		opt(&o)
	}

	unlock, err := d.enter()
	if err != nil {
		return err
	}
	defer unlock()

	impl := fixedArity(arity, fn)
	err = d.conn.Raw(func(driverConn any) error {
		conn, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		return conn.RegisterFunc(name, impl, o.deterministic)
	})
	if err != nil {
		return fmt.Errorf("registering function %s: %w", name, engineErr("", err))
	}

	d.logger.Debug("function registered", "name", name, "arity", arity)
	return nil
}

// fixedArity wraps fn in a func with exactly arity `any` parameters so the
// driver registers it with that argument count.
func fixedArity(arity int, fn ScalarFunc) any {
	in := make([]reflect.Type, arity)
	for i := range in {
		in[i] = anyType
	}
	ft := reflect.FuncOf(in, []reflect.Type{anyType, errorType}, false)

	return reflect.MakeFunc(ft, func(params []reflect.Value) []reflect.Value {
		args := make([]any, len(params))
		for i, p := range params {
			args[i] = p.Interface()
		}

		result, err := fn(args...)

		out := reflect.New(anyType).Elem()
		if result != nil {
			out.Set(reflect.ValueOf(result))
		}
		errOut := reflect.New(errorType).Elem()
		if err != nil {
			errOut.Set(reflect.ValueOf(err))
		}
		return []reflect.Value{out, errOut}
	}).Interface()
}
