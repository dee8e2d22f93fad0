package util

import (
	"fmt"
	"strings"
)

func AssertNoError(err error, prefix ...string) {
	if err != nil {
		pref := "error: "
		if len(prefix) > 0 {
			pref = strings.Join(prefix, " ") + ": "
		}
		panic(fmt.Errorf(pref+"%w", err))
	}
}

// CatchPanicOrError calls the function and returns the error it returned or the panic it raised
func CatchPanicOrError(f func() error) error {
	var err error
	func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			var ok bool
			if err, ok = r.(error); !ok {
				err = fmt.Errorf("%v", r)
			}
		}()
		err = f()
	}()
	return err
}

// Th makes string representation of the decimal integer with thousands separators
func Th(decimal string) string {
	sign := ""
	if strings.HasPrefix(decimal, "-") {
		sign, decimal = "-", decimal[1:]
	}
	if len(decimal) <= 3 {
		return sign + decimal
	}
	var sb strings.Builder
	sb.WriteString(sign)
	first := len(decimal) % 3
	if first == 0 {
		first = 3
	}
	sb.WriteString(decimal[:first])
	for i := first; i < len(decimal); i += 3 {
		sb.WriteByte(',')
		sb.WriteString(decimal[i : i+3])
	}
	return sb.String()
}

// AppendUnique appends elements which are not in the slice yet
func AppendUnique[T comparable](lst []T, elems ...T) []T {
	for _, el := range elems {
		found := false
		for _, e := range lst {
			if e == el {
				found = true
				break
			}
		}
		if !found {
			lst = append(lst, el)
		}
	}
	return lst
}

// Trunc cuts the string to at most n bytes, marking the cut with '..'
func Trunc(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 2 {
		return s[:n]
	}
	return s[:n-2] + ".."
}
