// Package playerjs derives final stream URLs from gated representation
// parameters by extracting and evaluating the provider's player script.
package playerjs

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// Decipherer transforms the 's' (signature) and 'n' (throttle) parameters of
// a gated stream URL using the player script the provider served alongside
// the metadata.
type Decipherer struct {
	jsBody []byte
}

func NewDecipherer(jsBody string) *Decipherer {
	return &Decipherer{jsBody: []byte(jsBody)}
}

type opKind int

const (
	opReverse opKind = iota
	opSplice
	opSwap
)

// scrambleStep is one parsed transformation of the signature byte slice.
type scrambleStep struct {
	kind opKind
	arg  int
}

func (st scrambleStep) apply(bs []byte) []byte {
	switch st.kind {
	case opReverse:
		for l, r := 0, len(bs)-1; l < r; l, r = l+1, r-1 {
			bs[l], bs[r] = bs[r], bs[l]
		}
	case opSplice:
		if st.arg >= 0 && st.arg <= len(bs) {
			bs = bs[st.arg:]
		}
	case opSwap:
		if len(bs) > 0 {
			p := st.arg % len(bs)
			bs[0], bs[p] = bs[p], bs[0]
		}
	}
	return bs
}

// DecipherSignature deciphers the 's' parameter by replaying the script's
// scramble operations natively.
func (d *Decipherer) DecipherSignature(s string) (string, error) {
	steps, err := d.parseScrambleSteps()
	if err != nil {
		return "", err
	}
	bs := []byte(s)
	for _, st := range steps {
		bs = st.apply(bs)
	}
	return string(bs), nil
}

// DecipherN transforms the 'n' throttle parameter by extracting the script's
// n-function and evaluating it in an embedded JS runtime.
func (d *Decipherer) DecipherN(n string) (string, error) {
	fn, err := d.extractNFunction()
	if err != nil {
		return "", err
	}
	return evalNFunction(fn, n)
}

const (
	jsVarPattern   = "[a-zA-Z_\\$][a-zA-Z_0-9]*"
	reversePattern = ":function\\(a\\)\\{" +
		"(?:return )?a\\.reverse\\(\\)" +
		"\\}"
	splicePattern = ":function\\(a,b\\)\\{" +
		"a\\.splice\\(0,b\\)" +
		"\\}"
	swapPattern = ":function\\(a,b\\)\\{" +
		"var c=a\\[0\\];a\\[0\\]=a\\[b(?:%a\\.length)?\\];a\\[b(?:%a\\.length)?\\]=c(?:;return a)?" +
		"\\}"
)

var (
	nFunctionNamePatterns = []*regexp.Regexp{
		// b=XY[0](b)||ZZ with fallback symbol
		regexp.MustCompile(`\.get\("n"\)\)&&\(b=([a-zA-Z0-9$]{0,3})\[(\d+)\](.+)\|\|([a-zA-Z0-9]{0,3})`),
		regexp.MustCompile(`\.get\("n"\)\)\s*&&\s*\(b=([a-zA-Z0-9$]{1,})\[(\d+)\]\([a-zA-Z0-9$]{1,}\).+\|\|([a-zA-Z0-9$]{1,})`),
		// direct call: b=XY(b)
		regexp.MustCompile(`\.get\("n"\)\)\s*&&\s*\(b=([a-zA-Z0-9$]{1,})\([a-zA-Z0-9$]{1,}\)`),
		regexp.MustCompile(`\.get\("n"\).*?&&.*?([a-zA-Z0-9$]{1,})\([a-zA-Z0-9$]{1,}\)`),
	}
	scrambleObjPattern = regexp.MustCompile(fmt.Sprintf(
		"(?:var|let|const)\\s+(%s)=\\{((?:(?:%s%s|%s%s|%s%s),?\\n?)+)\\}\\s*;?",
		jsVarPattern, jsVarPattern, swapPattern, jsVarPattern, splicePattern, jsVarPattern, reversePattern))
	reverseKeyPattern = regexp.MustCompile(fmt.Sprintf("(?m)(?:^|,)(%s)%s", jsVarPattern, reversePattern))
	spliceKeyPattern  = regexp.MustCompile(fmt.Sprintf("(?m)(?:^|,)(%s)%s", jsVarPattern, splicePattern))
	swapKeyPattern    = regexp.MustCompile(fmt.Sprintf("(?m)(?:^|,)(%s)%s", jsVarPattern, swapPattern))
	scrambleFnPatterns = []*regexp.Regexp{
		// function XX(a){...}
		regexp.MustCompile(fmt.Sprintf(
			"function(?:\\s+%s)?\\(a\\)\\{"+
				"a=a\\.split\\([^\\)]*\\);\\s*"+
				"((?:(?:a=)?%s(?:\\.%s|\\[[^\\]]+\\])\\(a,\\d+\\);?\\s*)+)"+
				"return a\\.join\\([^\\)]*\\)"+
				"\\}", jsVarPattern, jsVarPattern, jsVarPattern)),
		// XX=function(a){...}
		regexp.MustCompile(fmt.Sprintf(
			"%s\\s*=\\s*function\\(a\\)\\{"+
				"a=a\\.split\\([^\\)]*\\);\\s*"+
				"((?:(?:a=)?%s(?:\\.%s|\\[[^\\]]+\\])\\(a,\\d+\\);?\\s*)+)"+
				"return a\\.join\\([^\\)]*\\)"+
				"\\}", jsVarPattern, jsVarPattern, jsVarPattern)),
	}
)

func (d *Decipherer) parseScrambleSteps() ([]scrambleStep, error) {
	objMatch := scrambleObjPattern.FindSubmatch(d.jsBody)
	fnBody := d.findScrambleFnBody()
	if len(objMatch) < 3 || len(fnBody) == 0 {
		return nil, fmt.Errorf("signature tokens not found (#obj=%d, #fn=%d)", len(objMatch), len(fnBody))
	}

	obj := objMatch[1]
	objBody := objMatch[2]

	var reverseKey, spliceKey, swapKey string
	if m := reverseKeyPattern.FindSubmatch(objBody); len(m) > 1 {
		reverseKey = string(m[1])
	}
	if m := spliceKeyPattern.FindSubmatch(objBody); len(m) > 1 {
		spliceKey = string(m[1])
	}
	if m := swapKeyPattern.FindSubmatch(objBody); len(m) > 1 {
		swapKey = string(m[1])
	}

	callPattern, err := regexp.Compile(fmt.Sprintf(
		"(?:a=)?%s(?:\\.(%s|%s|%s)|\\[(?:\"(%s|%s|%s)\"|'(%s|%s|%s)')\\])\\(a,(\\d+)\\)",
		regexp.QuoteMeta(string(obj)),
		regexp.QuoteMeta(reverseKey), regexp.QuoteMeta(spliceKey), regexp.QuoteMeta(swapKey),
		regexp.QuoteMeta(reverseKey), regexp.QuoteMeta(spliceKey), regexp.QuoteMeta(swapKey),
		regexp.QuoteMeta(reverseKey), regexp.QuoteMeta(spliceKey), regexp.QuoteMeta(swapKey),
	))
	if err != nil {
		return nil, err
	}

	var steps []scrambleStep
	for _, m := range callPattern.FindAllSubmatch(fnBody, -1) {
		if len(m) < 5 {
			continue
		}
		key := firstNonEmpty(m[1], m[2], m[3])
		arg, _ := strconv.Atoi(string(m[4]))
		switch key {
		case reverseKey:
			steps = append(steps, scrambleStep{kind: opReverse})
		case swapKey:
			steps = append(steps, scrambleStep{kind: opSwap, arg: arg})
		case spliceKey:
			steps = append(steps, scrambleStep{kind: opSplice, arg: arg})
		}
	}
	if len(steps) == 0 {
		return nil, errors.New("empty signature operation list")
	}
	return steps, nil
}

func (d *Decipherer) findScrambleFnBody() []byte {
	for _, re := range scrambleFnPatterns {
		if m := re.FindSubmatch(d.jsBody); len(m) > 1 {
			return m[1]
		}
	}
	return nil
}

func (d *Decipherer) extractNFunction() (string, error) {
	for _, re := range nFunctionNamePatterns {
		m := re.FindSubmatch(d.jsBody)
		if len(m) == 0 {
			continue
		}
		switch len(m) {
		case 5:
			// Indexed pattern with explicit fallback symbol in group 4.
			if idx, err := strconv.Atoi(string(m[2])); err == nil && idx == 0 {
				return d.extractFunctionBody(string(m[4]))
			}
			return d.extractFunctionBody(string(m[1]))
		case 4:
			if idx, err := strconv.Atoi(string(m[2])); err == nil && idx == 0 {
				return d.extractFunctionBody(string(m[3]))
			}
			return d.extractFunctionBody(string(m[1]))
		default:
			return d.extractFunctionBody(string(m[1]))
		}
	}
	return "", errors.New("unable to extract n-function name")
}

// extractFunctionBody finds a named function definition and returns its full
// source, balancing braces while skipping string literals.
func (d *Decipherer) extractFunctionBody(name string) (string, error) {
	name = strings.TrimSpace(name)
	defs := [][]byte{
		[]byte(name + "=function("),
		[]byte(name + " = function("),
		[]byte("function " + name + "("),
	}
	start := -1
	for _, def := range defs {
		start = bytes.Index(d.jsBody, def)
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("unable to extract n-function body")
	}

	pos := start + bytes.IndexByte(d.jsBody[start:], '{') + 1
	var strChar byte
	for brackets := 1; brackets > 0; pos++ {
		if pos >= len(d.jsBody) {
			return "", fmt.Errorf("unterminated n-function body")
		}
		b := d.jsBody[pos]
		switch b {
		case '{':
			if strChar == 0 {
				brackets++
			}
		case '}':
			if strChar == 0 {
				brackets--
			}
		case '`', '"', '\'':
			if pos > 1 && d.jsBody[pos-1] == '\\' && d.jsBody[pos-2] != '\\' {
				continue
			}
			if strChar == 0 {
				strChar = b
			} else if strChar == b {
				strChar = 0
			}
		}
	}
	return string(d.jsBody[start:pos]), nil
}

func firstNonEmpty(groups ...[]byte) string {
	for _, g := range groups {
		if len(g) > 0 {
			return string(g)
		}
	}
	return ""
}

func evalNFunction(jsFunction, arg string) (string, error) {
	const fnName = "playflowNFunc"
	vm := goja.New()
	if _, err := vm.RunString(fnName + "=" + jsFunction); err != nil {
		return "", err
	}
	var fn func(string) string
	if err := vm.ExportTo(vm.Get(fnName), &fn); err != nil {
		return "", err
	}
	return fn(arg), nil
}
