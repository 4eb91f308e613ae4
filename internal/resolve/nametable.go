package resolve

import "strings"

// stockAlias maps a Chinese stock name (or common abbreviation) to its
// HK stock code. The table is a slice, not a map: title inference scans
// aliases in this exact order and the first alias found inside a warrant
// name wins, so iteration order is part of the behavior. Ambiguity
// between overlapping aliases is deliberately not reconciled.
type stockAlias struct {
	Name string
	Code string
}

var stockNameToCode = []stockAlias{
	{"騰訊", "700"},
	{"騰訊控股", "700"},
	{"移動", "0941"},
	{"移", "0941"},
	{"中移", "0941"},
	{"中國移動", "0941"},
	{"紫國", "2259"},
	{"紫光國芯", "2259"},
	{"阿里", "09988"},
	{"阿里巴巴", "09988"},
	{"美團", "03690"},
	{"美团", "03690"},
	{"百度", "09888"},
	{"京東", "09618"},
	{"网易", "09999"},
	{"網易", "09999"},
	{"小米", "01810"},
	{"恆生", "0066"},
	{"恒生", "0066"},
	{"恆指", "0066"},
	{"恒指", "0066"},
	{"中國平安", "02318"},
	{"中平", "02318"},
	{"工商銀行", "01398"},
	{"中國人壽", "02628"},
	{"中人壽", "02628"},
	{"中石油", "00857"},
	{"中石化", "00386"},
	{"金沙", "01928"},
	{"澳門金沙", "01928"},
	{"中國神華", "01088"},
	{"神華", "01088"},
	{"招商銀行", "03968"},
	{"南山", "00618"},
	{"格力", "06432"},
	{"吉利", "00175"},
	{"比亞迪", "01211"},
	{"比亚迪", "01211"},
}

// stockCodeToName is the reverse lookup keyed by padded code. The first
// alias listed for a code is the canonical display name.
var stockCodeToName = func() map[string]string {
	rev := make(map[string]string, len(stockNameToCode))
	for _, a := range stockNameToCode {
		padded := padCode(a.Code)
		if _, ok := rev[padded]; !ok {
			rev[padded] = a.Name
		}
	}
	return rev
}()

// padCode left-pads a stock code with zeros to 5 digits.
func padCode(code string) string {
	if len(code) >= 5 {
		return code
	}
	return strings.Repeat("0", 5-len(code)) + code
}

// nameByCode looks up the canonical name for a padded stock code.
func nameByCode(padded string) (string, bool) {
	name, ok := stockCodeToName[padded]
	return name, ok
}

// scanAliases returns the first table alias that appears as a substring
// of the warrant's descriptive name, along with its padded code.
func scanAliases(warrantName string) (name, paddedCode string, ok bool) {
	for _, a := range stockNameToCode {
		if strings.Contains(warrantName, a.Name) {
			return a.Name, padCode(a.Code), true
		}
	}
	return "", "", false
}
