package background

import (
	"testing"

	"github.com/tidwall/gjson"
)

func gjsonString(t *testing.T, data []byte, path string) string {
	t.Helper()
	return gjson.GetBytes(data, path).String()
}
