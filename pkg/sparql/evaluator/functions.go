package evaluator

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/algebra"
	"github.com/aleksaelezovic/tetrago/pkg/store"
)

// evaluateCall dispatches a builtin or cast call. BOUND, IF, and
// COALESCE control evaluation of their arguments and are handled before
// the strict path.
func (e *Evaluator) evaluateCall(ex *algebra.ExprFunc, binding *store.Binding) (rdf.Term, error) {
	switch ex.Name {
	case "BOUND":
		if len(ex.Args) != 1 {
			return nil, typeErrf("BOUND takes one variable")
		}
		v, ok := ex.Args[0].(*algebra.ExprVar)
		if !ok {
			return nil, typeErrf("BOUND requires a variable argument")
		}
		return rdf.NewBooleanLiteral(binding.Bound(v.Name)), nil

	case "IF":
		if len(ex.Args) != 3 {
			return nil, typeErrf("IF takes three arguments")
		}
		cond, err := e.EvaluateEBV(ex.Args[0], binding)
		if err != nil {
			return nil, err
		}
		if cond {
			return e.Evaluate(ex.Args[1], binding)
		}
		return e.Evaluate(ex.Args[2], binding)

	case "COALESCE":
		for _, arg := range ex.Args {
			if term, err := e.Evaluate(arg, binding); err == nil {
				return term, nil
			}
		}
		return nil, typeErrf("COALESCE: no argument evaluated without error")

	case "NOW":
		return rdf.NewDateTimeLiteral(e.now), nil

	case "RAND":
		return rdf.NewDoubleLiteral(e.rand.Float64()), nil

	case "UUID":
		return rdf.NewNamedNode("urn:uuid:" + uuid.NewString()), nil

	case "STRUUID":
		return rdf.NewLiteral(uuid.NewString()), nil

	case "BNODE":
		if len(ex.Args) == 0 {
			return e.FreshBNode(), nil
		}
	}

	args := make([]rdf.Term, len(ex.Args))
	for i, argExpr := range ex.Args {
		arg, err := e.Evaluate(argExpr, binding)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}
	return e.callStrict(ex.Name, args)
}

func (e *Evaluator) callStrict(name string, args []rdf.Term) (rdf.Term, error) {
	switch name {
	case "STR":
		return fnStr(args)
	case "LANG":
		return fnLang(args)
	case "LANGMATCHES":
		return fnLangMatches(args)
	case "DATATYPE":
		return fnDatatype(args)
	case "IRI", "URI":
		return fnIRI(args)
	case "BNODE":
		lex, err := stringArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		return rdf.NewBlankNode("qb_" + lex), nil
	case "STRDT":
		return fnStrDT(args)
	case "STRLANG":
		return fnStrLang(args)
	case "STRLEN":
		lex, err := stringArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		return rdf.NewIntegerLiteral(int64(len([]rune(lex)))), nil
	case "SUBSTR":
		return fnSubstr(args)
	case "UCASE":
		return stringResult(args, strings.ToUpper)
	case "LCASE":
		return stringResult(args, strings.ToLower)
	case "STRSTARTS":
		return stringPairBool(name, args, strings.HasPrefix)
	case "STRENDS":
		return stringPairBool(name, args, strings.HasSuffix)
	case "CONTAINS":
		return stringPairBool(name, args, strings.Contains)
	case "STRBEFORE":
		return fnStrBefore(args)
	case "STRAFTER":
		return fnStrAfter(args)
	case "ENCODE_FOR_URI":
		lex, err := stringArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		return rdf.NewLiteral(encodeForURI(lex)), nil
	case "CONCAT":
		return fnConcat(args)
	case "REGEX":
		return fnRegex(args)
	case "REPLACE":
		return fnReplace(args)
	case "ABS":
		return numericUnary(name, args, math.Abs, func(i int64) int64 {
			if i < 0 {
				return -i
			}
			return i
		})
	case "CEIL":
		return numericUnary(name, args, math.Ceil, func(i int64) int64 { return i })
	case "FLOOR":
		return numericUnary(name, args, math.Floor, func(i int64) int64 { return i })
	case "ROUND":
		return numericUnary(name, args, math.Round, func(i int64) int64 { return i })
	case "YEAR", "MONTH", "DAY", "HOURS", "MINUTES":
		return dateTimeComponent(name, args)
	case "SECONDS":
		return fnSeconds(args)
	case "TIMEZONE":
		return fnTimezone(args)
	case "TZ":
		return fnTZ(args)
	case "MD5":
		return hashResult(name, args, func(b []byte) []byte { s := md5.Sum(b); return s[:] })
	case "SHA1":
		return hashResult(name, args, func(b []byte) []byte { s := sha1.Sum(b); return s[:] })
	case "SHA256":
		return hashResult(name, args, func(b []byte) []byte { s := sha256.Sum256(b); return s[:] })
	case "SHA384":
		return hashResult(name, args, func(b []byte) []byte { s := sha512.Sum384(b); return s[:] })
	case "SHA512":
		return hashResult(name, args, func(b []byte) []byte { s := sha512.Sum512(b); return s[:] })
	case "SAMETERM":
		if len(args) != 2 {
			return nil, typeErrf("SAMETERM takes two arguments")
		}
		return rdf.NewBooleanLiteral(args[0].Equals(args[1])), nil
	case "ISIRI", "ISURI":
		return typeTest(args, func(t rdf.Term) bool { _, ok := t.(*rdf.NamedNode); return ok })
	case "ISBLANK":
		return typeTest(args, func(t rdf.Term) bool { _, ok := t.(*rdf.BlankNode); return ok })
	case "ISLITERAL":
		return typeTest(args, func(t rdf.Term) bool { _, ok := t.(*rdf.Literal); return ok })
	case "ISNUMERIC":
		return typeTest(args, func(t rdf.Term) bool { _, ok := parseNumeric(t); return ok })
	case "ISTRIPLE":
		return typeTest(args, func(t rdf.Term) bool { _, ok := t.(*rdf.Triple); return ok })
	case "TRIPLE":
		return fnTriple(args)
	case "SUBJECT":
		return tripleAccessor(name, args, func(t *rdf.Triple) rdf.Term { return t.Subject })
	case "PREDICATE":
		return tripleAccessor(name, args, func(t *rdf.Triple) rdf.Term { return t.Predicate })
	case "OBJECT":
		return tripleAccessor(name, args, func(t *rdf.Triple) rdf.Term { return t.Object })
	default:
		return castFunction(name, args)
	}
}

func fnStr(args []rdf.Term) (rdf.Term, error) {
	if len(args) != 1 {
		return nil, typeErrf("STR takes one argument")
	}
	switch t := args[0].(type) {
	case *rdf.NamedNode:
		return rdf.NewLiteral(t.IRI), nil
	case *rdf.Literal:
		return rdf.NewLiteral(t.Value), nil
	default:
		return nil, typeErrf("STR of %T", args[0])
	}
}

func fnLang(args []rdf.Term) (rdf.Term, error) {
	if len(args) != 1 {
		return nil, typeErrf("LANG takes one argument")
	}
	lit, ok := args[0].(*rdf.Literal)
	if !ok {
		return nil, typeErrf("LANG of a non-literal")
	}
	return rdf.NewLiteral(lit.Language), nil
}

func fnLangMatches(args []rdf.Term) (rdf.Term, error) {
	if len(args) != 2 {
		return nil, typeErrf("LANGMATCHES takes two arguments")
	}
	tag, err := plainString(args[0])
	if err != nil {
		return nil, err
	}
	pattern, err := plainString(args[1])
	if err != nil {
		return nil, err
	}
	if tag == "" {
		return rdf.NewBooleanLiteral(false), nil
	}
	if pattern == "*" {
		return rdf.NewBooleanLiteral(true), nil
	}
	tagLower, patternLower := strings.ToLower(tag), strings.ToLower(pattern)
	match := tagLower == patternLower || strings.HasPrefix(tagLower, patternLower+"-")
	return rdf.NewBooleanLiteral(match), nil
}

func fnDatatype(args []rdf.Term) (rdf.Term, error) {
	if len(args) != 1 {
		return nil, typeErrf("DATATYPE takes one argument")
	}
	lit, ok := args[0].(*rdf.Literal)
	if !ok {
		return nil, typeErrf("DATATYPE of a non-literal")
	}
	return rdf.NewNamedNode(lit.DatatypeIRI()), nil
}

func fnIRI(args []rdf.Term) (rdf.Term, error) {
	if len(args) != 1 {
		return nil, typeErrf("IRI takes one argument")
	}
	switch t := args[0].(type) {
	case *rdf.NamedNode:
		return t, nil
	case *rdf.Literal:
		if err := rdf.ValidateIRI(t.Value); err != nil {
			return nil, typeErrf("IRI: %v", err)
		}
		return rdf.NewNamedNode(t.Value), nil
	default:
		return nil, typeErrf("IRI of %T", args[0])
	}
}

func fnStrDT(args []rdf.Term) (rdf.Term, error) {
	if len(args) != 2 {
		return nil, typeErrf("STRDT takes two arguments")
	}
	lex, err := plainString(args[0])
	if err != nil {
		return nil, err
	}
	dt, ok := args[1].(*rdf.NamedNode)
	if !ok {
		return nil, typeErrf("STRDT datatype must be an IRI")
	}
	return rdf.NewLiteralWithDatatype(lex, dt), nil
}

func fnStrLang(args []rdf.Term) (rdf.Term, error) {
	if len(args) != 2 {
		return nil, typeErrf("STRLANG takes two arguments")
	}
	lex, err := plainString(args[0])
	if err != nil {
		return nil, err
	}
	lang, err := plainString(args[1])
	if err != nil {
		return nil, err
	}
	if lang == "" {
		return nil, typeErrf("STRLANG with empty language tag")
	}
	return rdf.NewLiteralWithLanguage(lex, lang), nil
}

func fnSubstr(args []rdf.Term) (rdf.Term, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, typeErrf("SUBSTR takes two or three arguments")
	}
	source, ok := args[0].(*rdf.Literal)
	if !ok {
		return nil, typeErrf("SUBSTR of a non-literal")
	}
	start, ok := parseNumeric(args[1])
	if !ok {
		return nil, typeErrf("SUBSTR start must be numeric")
	}

	runes := []rune(source.Value)
	// SPARQL positions are 1-based
	from := int(start.float()) - 1
	to := len(runes)
	if len(args) == 3 {
		length, ok := parseNumeric(args[2])
		if !ok {
			return nil, typeErrf("SUBSTR length must be numeric")
		}
		to = from + int(length.float())
	}
	if from < 0 {
		from = 0
	}
	if to > len(runes) {
		to = len(runes)
	}
	if from > to {
		from = to
	}
	return copyStringProperties(source, string(runes[from:to])), nil
}

func fnStrBefore(args []rdf.Term) (rdf.Term, error) {
	a, b, err := argumentCompatibleStrings("STRBEFORE", args)
	if err != nil {
		return nil, err
	}
	idx := strings.Index(a.Value, b.Value)
	if idx < 0 {
		return rdf.NewLiteral(""), nil
	}
	return copyStringProperties(a, a.Value[:idx]), nil
}

func fnStrAfter(args []rdf.Term) (rdf.Term, error) {
	a, b, err := argumentCompatibleStrings("STRAFTER", args)
	if err != nil {
		return nil, err
	}
	idx := strings.Index(a.Value, b.Value)
	if idx < 0 {
		return rdf.NewLiteral(""), nil
	}
	return copyStringProperties(a, a.Value[idx+len(b.Value):]), nil
}

func fnConcat(args []rdf.Term) (rdf.Term, error) {
	var sb strings.Builder
	commonLang := ""
	first := true
	allLang := true
	for _, arg := range args {
		lit, ok := arg.(*rdf.Literal)
		if !ok || (lit.DatatypeIRI() != rdf.XSDString.IRI && lit.Language == "") {
			return nil, typeErrf("CONCAT requires string arguments")
		}
		sb.WriteString(lit.Value)
		if first {
			commonLang = lit.Language
			first = false
		} else if lit.Language != commonLang {
			allLang = false
		}
		if lit.Language == "" {
			allLang = false
		}
	}
	if allLang && commonLang != "" {
		return rdf.NewLiteralWithLanguage(sb.String(), commonLang), nil
	}
	return rdf.NewLiteral(sb.String()), nil
}

func fnRegex(args []rdf.Term) (rdf.Term, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, typeErrf("REGEX takes two or three arguments")
	}
	text, err := stringArg("REGEX", args, 0)
	if err != nil {
		return nil, err
	}
	re, err := compileRegex(args[1:])
	if err != nil {
		return nil, err
	}
	return rdf.NewBooleanLiteral(re.MatchString(text)), nil
}

func fnReplace(args []rdf.Term) (rdf.Term, error) {
	if len(args) != 3 && len(args) != 4 {
		return nil, typeErrf("REPLACE takes three or four arguments")
	}
	source, ok := args[0].(*rdf.Literal)
	if !ok {
		return nil, typeErrf("REPLACE of a non-literal")
	}
	var patternArgs []rdf.Term
	patternArgs = append(patternArgs, args[1])
	if len(args) == 4 {
		patternArgs = append(patternArgs, args[3])
	}
	re, err := compileRegex(patternArgs)
	if err != nil {
		return nil, err
	}
	replacement, err := plainString(args[2])
	if err != nil {
		return nil, err
	}
	// XPath replacement uses $1; Go uses ${1}
	goReplacement := regexp.MustCompile(`\$(\d)`).ReplaceAllString(replacement, `${$1}`)
	return copyStringProperties(source, re.ReplaceAllString(source.Value, goReplacement)), nil
}

// compileRegex compiles a pattern with optional XPath-style flags.
func compileRegex(args []rdf.Term) (*regexp.Regexp, error) {
	pattern, err := plainString(args[0])
	if err != nil {
		return nil, err
	}
	flags := ""
	if len(args) == 2 {
		f, err := plainString(args[1])
		if err != nil {
			return nil, err
		}
		for _, flag := range f {
			switch flag {
			case 'i', 's', 'm':
				flags += string(flag)
			case 'q':
				pattern = regexp.QuoteMeta(pattern)
			default:
				return nil, typeErrf("unsupported regex flag %q", flag)
			}
		}
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, typeErrf("invalid regex: %v", err)
	}
	return re, nil
}

func numericUnary(name string, args []rdf.Term, ff func(float64) float64, fi func(int64) int64) (rdf.Term, error) {
	if len(args) != 1 {
		return nil, typeErrf("%s takes one argument", name)
	}
	n, ok := parseNumeric(args[0])
	if !ok {
		return nil, typeErrf("%s requires a numeric argument", name)
	}
	if n.kind == kindInteger {
		return numericLiteral(kindInteger, fi(n.i), 0), nil
	}
	return numericLiteral(n.kind, 0, ff(n.f)), nil
}

func dateTimeComponent(name string, args []rdf.Term) (rdf.Term, error) {
	t, err := dateTimeArg(name, args)
	if err != nil {
		return nil, err
	}
	var v int
	switch name {
	case "YEAR":
		v = t.Year()
	case "MONTH":
		v = int(t.Month())
	case "DAY":
		v = t.Day()
	case "HOURS":
		v = t.Hour()
	case "MINUTES":
		v = t.Minute()
	}
	return rdf.NewIntegerLiteral(int64(v)), nil
}

func fnSeconds(args []rdf.Term) (rdf.Term, error) {
	t, err := dateTimeArg("SECONDS", args)
	if err != nil {
		return nil, err
	}
	seconds := float64(t.Second()) + float64(t.Nanosecond())/1e9
	return rdf.NewDecimalLiteral(formatDecimalValue(seconds)), nil
}

func fnTimezone(args []rdf.Term) (rdf.Term, error) {
	t, err := dateTimeArg("TIMEZONE", args)
	if err != nil {
		return nil, err
	}
	lit := args[0].(*rdf.Literal)
	if !strings.HasSuffix(lit.Value, "Z") && !hasOffset(lit.Value) {
		return nil, typeErrf("TIMEZONE of a dateTime without timezone")
	}
	_, offset := t.Zone()
	minutes := offset / 60
	if minutes == 0 {
		return rdf.NewLiteralWithDatatype("PT0S", rdf.NewNamedNode("http://www.w3.org/2001/XMLSchema#dayTimeDuration")), nil
	}
	sign := ""
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	var dur string
	if minutes%60 == 0 {
		dur = fmt.Sprintf("%sPT%dH", sign, minutes/60)
	} else {
		dur = fmt.Sprintf("%sPT%dH%dM", sign, minutes/60, minutes%60)
	}
	return rdf.NewLiteralWithDatatype(dur, rdf.NewNamedNode("http://www.w3.org/2001/XMLSchema#dayTimeDuration")), nil
}

func fnTZ(args []rdf.Term) (rdf.Term, error) {
	if len(args) != 1 {
		return nil, typeErrf("TZ takes one argument")
	}
	lit, ok := args[0].(*rdf.Literal)
	if !ok {
		return nil, typeErrf("TZ of a non-literal")
	}
	value := lit.Value
	if strings.HasSuffix(value, "Z") {
		return rdf.NewLiteral("Z"), nil
	}
	if len(value) >= 6 && hasOffset(value) {
		return rdf.NewLiteral(value[len(value)-6:]), nil
	}
	return rdf.NewLiteral(""), nil
}

func hasOffset(value string) bool {
	return len(value) >= 6 &&
		(value[len(value)-6] == '+' || value[len(value)-6] == '-') &&
		value[len(value)-3] == ':'
}

func dateTimeArg(name string, args []rdf.Term) (time.Time, error) {
	if len(args) != 1 {
		return time.Time{}, typeErrf("%s takes one argument", name)
	}
	lit, ok := args[0].(*rdf.Literal)
	if !ok {
		return time.Time{}, typeErrf("%s of a non-literal", name)
	}
	t, err := parseDateTimeValue(lit)
	if err != nil {
		return time.Time{}, typeErrf("%s: %v", name, err)
	}
	return t, nil
}

func hashResult(name string, args []rdf.Term, hash func([]byte) []byte) (rdf.Term, error) {
	lex, err := stringArg(name, args, 0)
	if err != nil {
		return nil, err
	}
	return rdf.NewLiteral(hex.EncodeToString(hash([]byte(lex)))), nil
}

func typeTest(args []rdf.Term, test func(rdf.Term) bool) (rdf.Term, error) {
	if len(args) != 1 {
		return nil, typeErrf("type test takes one argument")
	}
	return rdf.NewBooleanLiteral(test(args[0])), nil
}

func fnTriple(args []rdf.Term) (rdf.Term, error) {
	if len(args) != 3 {
		return nil, typeErrf("TRIPLE takes three arguments")
	}
	triple := rdf.NewTriple(args[0], args[1], args[2])
	if err := triple.Validate(); err != nil {
		return nil, typeErrf("TRIPLE: %v", err)
	}
	return triple, nil
}

func tripleAccessor(name string, args []rdf.Term, get func(*rdf.Triple) rdf.Term) (rdf.Term, error) {
	if len(args) != 1 {
		return nil, typeErrf("%s takes one argument", name)
	}
	triple, ok := args[0].(*rdf.Triple)
	if !ok {
		return nil, typeErrf("%s of a non-triple", name)
	}
	return get(triple), nil
}

// castFunction implements XPath constructor casts named by IRI.
func castFunction(name string, args []rdf.Term) (rdf.Term, error) {
	iri := strings.TrimSuffix(strings.TrimPrefix(name, "<"), ">")
	if !strings.HasPrefix(iri, "http://www.w3.org/2001/XMLSchema#") {
		return nil, typeErrf("unknown function %s", name)
	}
	if len(args) != 1 {
		return nil, typeErrf("cast takes one argument")
	}

	var lexical string
	switch t := args[0].(type) {
	case *rdf.Literal:
		lexical = strings.TrimSpace(t.Value)
	case *rdf.NamedNode:
		if iri == rdf.XSDString.IRI {
			return rdf.NewLiteral(t.IRI), nil
		}
		return nil, typeErrf("cannot cast an IRI to %s", iri)
	default:
		return nil, typeErrf("cannot cast %T", args[0])
	}

	switch iri {
	case rdf.XSDString.IRI:
		return rdf.NewLiteral(lexical), nil
	case rdf.XSDInteger.IRI:
		if n, ok := parseNumeric(args[0]); ok {
			return rdf.NewIntegerLiteral(int64(n.float())), nil
		}
		i, err := strconv.ParseInt(lexical, 10, 64)
		if err != nil {
			return nil, typeErrf("cannot cast %q to xsd:integer", lexical)
		}
		return rdf.NewIntegerLiteral(i), nil
	case rdf.XSDDecimal.IRI:
		f, err := strconv.ParseFloat(lexical, 64)
		if err != nil {
			return nil, typeErrf("cannot cast %q to xsd:decimal", lexical)
		}
		return rdf.NewDecimalLiteral(formatDecimalValue(f)), nil
	case rdf.XSDFloat.IRI:
		f, err := strconv.ParseFloat(lexical, 32)
		if err != nil {
			return nil, typeErrf("cannot cast %q to xsd:float", lexical)
		}
		return rdf.NewLiteralWithDatatype(rdf.FormatDouble(f), rdf.XSDFloat), nil
	case rdf.XSDDouble.IRI:
		f, err := strconv.ParseFloat(lexical, 64)
		if err != nil {
			return nil, typeErrf("cannot cast %q to xsd:double", lexical)
		}
		return rdf.NewDoubleLiteral(f), nil
	case rdf.XSDBoolean.IRI:
		b, err := parseBoolean(lexical)
		if err != nil {
			if n, ok := parseNumeric(args[0]); ok {
				return rdf.NewBooleanLiteral(n.float() != 0), nil
			}
			return nil, typeErrf("cannot cast %q to xsd:boolean", lexical)
		}
		return rdf.NewBooleanLiteral(b), nil
	case rdf.XSDDateTime.IRI:
		lit := rdf.NewLiteralWithDatatype(lexical, rdf.XSDDateTime)
		if _, err := parseDateTimeValue(lit); err != nil {
			return nil, typeErrf("cannot cast %q to xsd:dateTime", lexical)
		}
		return lit, nil
	default:
		return nil, typeErrf("unsupported cast to %s", iri)
	}
}

// encodeForURI percent-encodes everything but RFC 3986 unreserved
// characters.
func encodeForURI(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') ||
			(ch >= '0' && ch <= '9') || ch == '-' || ch == '_' || ch == '.' || ch == '~' {
			sb.WriteByte(ch)
		} else {
			fmt.Fprintf(&sb, "%%%02X", ch)
		}
	}
	return sb.String()
}

// plainString requires an xsd:string literal argument.
func plainString(term rdf.Term) (string, error) {
	lit, ok := term.(*rdf.Literal)
	if !ok || lit.Language != "" || lit.DatatypeIRI() != rdf.XSDString.IRI {
		return "", typeErrf("expected a plain string literal")
	}
	return lit.Value, nil
}

// stringArg accepts plain or language-tagged strings.
func stringArg(name string, args []rdf.Term, idx int) (string, error) {
	if idx >= len(args) {
		return "", typeErrf("%s: missing argument", name)
	}
	lit, ok := args[idx].(*rdf.Literal)
	if !ok || (lit.Language == "" && lit.DatatypeIRI() != rdf.XSDString.IRI) {
		return "", typeErrf("%s requires a string argument", name)
	}
	return lit.Value, nil
}

// stringResult applies a transformation preserving language tags.
func stringResult(args []rdf.Term, transform func(string) string) (rdf.Term, error) {
	if len(args) != 1 {
		return nil, typeErrf("string function takes one argument")
	}
	lit, ok := args[0].(*rdf.Literal)
	if !ok || (lit.Language == "" && lit.DatatypeIRI() != rdf.XSDString.IRI) {
		return nil, typeErrf("string function requires a string argument")
	}
	return copyStringProperties(lit, transform(lit.Value)), nil
}

// stringPairBool checks argument compatibility then applies a predicate.
func stringPairBool(name string, args []rdf.Term, test func(string, string) bool) (rdf.Term, error) {
	a, b, err := argumentCompatibleStrings(name, args)
	if err != nil {
		return nil, err
	}
	return rdf.NewBooleanLiteral(test(a.Value, b.Value)), nil
}

// argumentCompatibleStrings enforces the SPARQL string argument
// compatibility rules: the second argument must be plain or share the
// first's language tag.
func argumentCompatibleStrings(name string, args []rdf.Term) (*rdf.Literal, *rdf.Literal, error) {
	if len(args) != 2 {
		return nil, nil, typeErrf("%s takes two arguments", name)
	}
	a, okA := args[0].(*rdf.Literal)
	b, okB := args[1].(*rdf.Literal)
	if !okA || !okB {
		return nil, nil, typeErrf("%s requires string arguments", name)
	}
	aIsString := a.Language != "" || a.DatatypeIRI() == rdf.XSDString.IRI
	bIsString := b.Language != "" || b.DatatypeIRI() == rdf.XSDString.IRI
	if !aIsString || !bIsString {
		return nil, nil, typeErrf("%s requires string arguments", name)
	}
	if b.Language != "" && b.Language != a.Language {
		return nil, nil, typeErrf("%s: incompatible language tags", name)
	}
	return a, b, nil
}

func copyStringProperties(source *rdf.Literal, value string) *rdf.Literal {
	if source.Language != "" {
		return rdf.NewLiteralWithLanguage(value, source.Language)
	}
	return rdf.NewLiteral(value)
}
