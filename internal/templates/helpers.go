package templates

// Helpers callable as {{ fn arg... }} or as pipe filters. The render engine
// implements each of them.
var Helpers = []string{"upper", "lower", "title", "date", "relurl", "json", "len", "list_md"}

var helperSet = func() map[string]bool {
	m := make(map[string]bool, len(Helpers))
	for _, h := range Helpers {
		m[h] = true
	}
	return m
}()

// IsHelper reports whether name is a known helper.
func IsHelper(name string) bool { return helperSet[name] }
