// Package kfmt implements the allocation-free formatted output used by the
// kernel before and after the Go allocator becomes available.
package kfmt

import (
	"io"
	"unsafe"
)

// numBufSize is the size of the scratch buffer used for rendering integers.
// It fits a 64-bit value in base 8 plus a sign.
const numBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	lowerDigits = "0123456789abcdef"
	numBuf      [numBufSize]byte

	// oneByte is the buffer used for emitting single characters; slicing
	// the format string would make the compiler allocate.
	oneByte [1]byte

	// earlyBuf collects output written before a sink has been attached.
	earlyBuf ringBuffer

	// outputSink receives Printf output. While nil, output goes to earlyBuf.
	outputSink io.Writer
)

// SetOutputSink redirects Printf output to w and flushes any output that was
// buffered while no sink was attached.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyBuf)
	}
}

// Output returns an io.Writer that forwards to the active sink, or to the
// early output buffer while no sink is attached. Unlike the value passed to
// SetOutputSink it follows later sink changes.
func Output() io.Writer {
	return activeSink{}
}

type activeSink struct{}

func (activeSink) Write(p []byte) (int, error) {
	write(outputSink, p)
	return len(p), nil
}

// Printf writes formatted output to the active sink. It supports a subset of
// the fmt verbs:
//
//	%s  string or []byte
//	%d  base 10 integer
//	%o  base 8 integer
//	%x  base 16 integer, lower-case digits
//	%t  bool
//
// An optional decimal width may precede the verb. Strings and base-10
// integers are padded with spaces; base 8 and base 16 integers are padded
// with zeroes.
//
// Printf never allocates so it can be used before the Go allocator is set
// up. Arguments that do not match one of the supported built-in types are
// reported as %!(WRONGTYPE).
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves like Printf but writes to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex int
		width    int
		i        int
	)

	for i < len(format) {
		if format[i] != '%' {
			writeByte(w, format[i])
			i++
			continue
		}

		width = 0
		for i++; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			width = width*10 + int(format[i]-'0')
		}

		if i == len(format) {
			write(w, errNoVerb)
			break
		}

		verb := format[i]
		i++

		switch verb {
		case '%':
			writeByte(w, '%')
			continue
		case 'd', 'o', 'x', 's', 't':
		default:
			write(w, errNoVerb)
			continue
		}

		if argIndex >= len(args) {
			write(w, errMissingArg)
			continue
		}

		arg := args[argIndex]
		argIndex++

		switch verb {
		case 'd':
			fmtInt(w, arg, 10, width)
		case 'o':
			fmtInt(w, arg, 8, width)
		case 'x':
			fmtInt(w, arg, 16, width)
		case 's':
			fmtString(w, arg, width)
		case 't':
			fmtBool(w, arg)
		}
	}

	for ; argIndex < len(args); argIndex++ {
		write(w, errExtraArg)
	}
}

func fmtBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	switch {
	case !ok:
		write(w, errWrongArgType)
	case b:
		write(w, trueValue)
	default:
		write(w, falseValue)
	}
}

func fmtString(w io.Writer, v interface{}, width int) {
	switch s := v.(type) {
	case string:
		pad(w, ' ', width-len(s))
		for i := 0; i < len(s); i++ {
			writeByte(w, s[i])
		}
	case []byte:
		pad(w, ' ', width-len(s))
		write(w, s)
	default:
		write(w, errWrongArgType)
	}
}

func pad(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		writeByte(w, ch)
	}
}

// fmtInt renders v, which must be one of the built-in integer types, in the
// requested base. The digits are generated right-to-left into numBuf.
func fmtInt(w io.Writer, v interface{}, base uint64, width int) {
	var (
		mag uint64
		neg bool
	)

	switch n := v.(type) {
	case uint8:
		mag = uint64(n)
	case uint16:
		mag = uint64(n)
	case uint32:
		mag = uint64(n)
	case uint64:
		mag = n
	case uint:
		mag = uint64(n)
	case uintptr:
		mag = uint64(n)
	case int8:
		mag, neg = absInt(int64(n))
	case int16:
		mag, neg = absInt(int64(n))
	case int32:
		mag, neg = absInt(int64(n))
	case int64:
		mag, neg = absInt(n)
	case int:
		mag, neg = absInt(int64(n))
	default:
		write(w, errWrongArgType)
		return
	}

	if width > numBufSize-1 {
		width = numBufSize - 1
	}

	padCh := byte('0')
	if base == 10 {
		padCh = ' '
	}

	pos := numBufSize
	for {
		pos--
		numBuf[pos] = lowerDigits[mag%base]
		mag /= base
		if mag == 0 {
			break
		}
	}

	signWidth := 0
	if neg {
		signWidth = 1
	}

	if padCh == ' ' {
		if neg {
			pos--
			numBuf[pos] = '-'
		}
		for numBufSize-pos < width {
			pos--
			numBuf[pos] = ' '
		}
	} else {
		for numBufSize-pos+signWidth < width {
			pos--
			numBuf[pos] = '0'
		}
		if neg {
			pos--
			numBuf[pos] = '-'
		}
	}

	write(w, numBuf[pos:])
}

func absInt(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

func writeByte(w io.Writer, b byte) {
	oneByte[0] = b
	write(w, oneByte[:])
}

// write hides p from escape analysis. The sink is an interface so the
// compiler would otherwise assume p escapes and heap-allocate the argument
// slice of every Printf call, which crashes the kernel before the allocator
// is initialized.
func write(w io.Writer, p []byte) {
	sinkWrite(w, noEscape(unsafe.Pointer(&p)))
}

func sinkWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		w.Write(p)
		return
	}
	earlyBuf.Write(p)
}

// noEscape hides a pointer from escape analysis (see runtime/stubs.go).
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
