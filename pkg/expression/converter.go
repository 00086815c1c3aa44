package expression

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/l7mp/fixpoint/pkg/util"
)

func IsList(d any) bool {
	if d == nil {
		return false
	}
	dv := reflect.ValueOf(d)
	return dv.Kind() == reflect.Slice || dv.Kind() == reflect.Array
}

func AsList(d any) ([]any, error) {
	if !IsList(d) {
		return nil, fmt.Errorf("argument is not a list: %s", util.Stringify(d))
	}

	ret, ok := d.([]any)
	if !ok {
		return nil, fmt.Errorf("failed to convert argument into a list: %s", util.Stringify(d))
	}

	return ret, nil
}

func AsBinaryList(d any) ([]any, error) {
	vs, err := AsList(d)
	if err != nil {
		return nil, err
	}

	if len(vs) != 2 {
		return nil, fmt.Errorf("invalid number of arguments for a binary operator: %d", len(vs))
	}

	return vs, nil
}

func AsBool(d any) (bool, error) {
	if d == nil {
		return false, errors.New("argument is nil")
	}

	if b, ok := d.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("argument is not a boolean: %s", util.Stringify(d))
}

func AsBoolList(d any) ([]bool, error) {
	vs, err := AsList(d)
	if err != nil {
		return nil, err
	}

	ret := make([]bool, 0, len(vs))
	for _, v := range vs {
		b, err := AsBool(v)
		if err != nil {
			return nil, err
		}
		ret = append(ret, b)
	}
	return ret, nil
}

func AsInt(d any) (int64, error) {
	if d == nil {
		return 0, errors.New("argument is nil")
	}

	switch i := d.(type) {
	case int:
		return int64(i), nil
	case int32:
		return int64(i), nil
	case int64:
		return i, nil
	}

	return 0, fmt.Errorf("argument is not an int: %s", util.Stringify(d))
}

func AsIntList(d any) ([]int64, error) {
	vs, err := AsList(d)
	if err != nil {
		return nil, err
	}

	ret := make([]int64, 0, len(vs))
	for _, v := range vs {
		i, err := AsInt(v)
		if err != nil {
			return nil, err
		}
		ret = append(ret, i)
	}
	return ret, nil
}

func AsString(d any) (string, error) {
	if d == nil {
		return "", errors.New("argument is nil")
	}

	if s, ok := d.(string); ok {
		return s, nil
	}

	return "", fmt.Errorf("argument is not a string: %s", util.Stringify(d))
}

func AsStringList(d any) ([]string, error) {
	vs, err := AsList(d)
	if err != nil {
		return nil, err
	}

	ret := make([]string, 0, len(vs))
	for _, v := range vs {
		s, err := AsString(v)
		if err != nil {
			return nil, err
		}
		ret = append(ret, s)
	}
	return ret, nil
}
