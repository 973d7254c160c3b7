package remote

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/lexiaoyao20/i18n-app/internal/apperr"
)

const wrapperPrefix = "languages/"

// UnwrapLanguage extracts the translation object of code from a downloaded
// body. The backend serves {"languages/<code>.json": {...}}; a body that is
// already a plain translation object is returned unchanged.
func UnwrapLanguage(body []byte, code string) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s: body is not valid JSON", apperr.ErrInvalidFormat, code)
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: %s: expected an object", apperr.ErrInvalidFormat, code)
	}

	want := wrapperPrefix + code + ".json"
	var (
		inner   gjson.Result
		found   bool
		keys    int
		wrapped int
	)
	doc.ForEach(func(k, v gjson.Result) bool {
		keys++
		key := k.String()
		if strings.HasPrefix(key, wrapperPrefix) && strings.HasSuffix(key, ".json") {
			wrapped++
		}
		if key == want {
			inner, found = v, true
		}
		return true
	})

	switch {
	case found:
		if !inner.IsObject() {
			return nil, fmt.Errorf("%w: %s: %q is not an object", apperr.ErrInvalidFormat, code, want)
		}
		return []byte(inner.Raw), nil
	case keys > 0 && wrapped == keys:
		return nil, fmt.Errorf("%w: %s: body does not contain %q", apperr.ErrInvalidFormat, code, want)
	default:
		return body, nil
	}
}
