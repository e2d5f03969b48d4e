package fixedmath

// Cmp is a comparison operator as written in level data.
type Cmp string

const (
	CmpEQ Cmp = "=="
	CmpNE Cmp = "!="
	CmpLT Cmp = "<"
	CmpLE Cmp = "<="
	CmpGT Cmp = ">"
	CmpGE Cmp = ">="
)

// ParseCmp accepts the symbolic operators and their short names (eq, ne, lt,
// le, gt, ge).
func ParseCmp(s string) (Cmp, bool) {
	switch s {
	case "==", "eq":
		return CmpEQ, true
	case "!=", "ne":
		return CmpNE, true
	case "<", "lt":
		return CmpLT, true
	case "<=", "le":
		return CmpLE, true
	case ">", "gt":
		return CmpGT, true
	case ">=", "ge":
		return CmpGE, true
	}
	return "", false
}

func (c Cmp) Eval(a, b Fixed) bool {
	switch c {
	case CmpEQ:
		return a == b
	case CmpNE:
		return a != b
	case CmpLT:
		return a < b
	case CmpLE:
		return a <= b
	case CmpGT:
		return a > b
	case CmpGE:
		return a >= b
	}
	return false
}
