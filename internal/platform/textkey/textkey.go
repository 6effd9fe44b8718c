// Package textkey folds listing text into the lower-cased, width-normalized
// form stored next to each book and matched by search.
package textkey

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fold は NFKC 正規化 + case folding
func Fold(s string) string {
	return strings.TrimSpace(cases.Fold().String(norm.NFKC.String(s)))
}

// ISBN はハイフンと空白を除いた形
func ISBN(s string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(Fold(s))
}

// Listing is the value stored in books.search_text.
func Listing(title, author string) string {
	return Fold(title) + "\n" + Fold(author)
}

// LikePattern builds a substring pattern for `LIKE ? ESCAPE '!'`.
func LikePattern(needle string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(needle) + "%"
}
