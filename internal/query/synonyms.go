package query

// CodeSynonyms maps natural-language terms to code vocabulary equivalents.
// The direction matters: user vocabulary expands toward code vocabulary,
// bridging the gap between "read json data" and deserializeJSONStream. The
// table is applied client-side by the rewriter only; no synonym map is
// configured on the search service.
var CodeSynonyms = map[string][]string{
	"function":       {"func", "method", "def"},
	"method":         {"func", "function", "def"},
	"class":          {"type", "struct", "interface"},
	"type":           {"class", "struct"},
	"error":          {"err", "exception", "failure"},
	"exception":      {"error", "err", "panic"},
	"authentication": {"auth", "login", "credential"},
	"auth":           {"authentication", "authorization", "login"},
	"authorization":  {"auth", "permission", "rbac"},
	"database":       {"db", "storage", "sql"},
	"db":             {"database", "storage"},
	"config":         {"configuration", "settings", "options"},
	"configuration":  {"config", "settings"},
	"settings":       {"config", "configuration", "options"},
	"initialize":     {"init", "setup", "bootstrap"},
	"init":           {"initialize", "setup"},
	"request":        {"req", "http", "call"},
	"response":       {"resp", "reply", "result"},
	"parameter":      {"param", "arg", "argument"},
	"argument":       {"arg", "param", "parameter"},
	"variable":       {"var", "field", "value"},
	"delete":         {"remove", "del", "drop"},
	"remove":         {"delete", "del"},
	"create":         {"new", "make", "build"},
	"update":         {"modify", "patch", "set"},
	"fetch":          {"get", "retrieve", "load"},
	"retrieve":       {"get", "fetch", "load"},
	"send":           {"post", "publish", "emit"},
	"api":            {"endpoint", "route", "handler"},
	"endpoint":       {"route", "handler", "api"},
	"middleware":     {"interceptor", "handler", "filter"},
	"concurrency":    {"goroutine", "thread", "parallel"},
	"cache":          {"lru", "memoize", "ttl"},
	"serialize":      {"marshal", "encode", "json"},
	"deserialize":    {"unmarshal", "decode", "parse"},
	"log":            {"logger", "logging", "slog"},
	"token":          {"jwt", "bearer", "credential"},
	"session":        {"cookie", "token", "principal"},
	"queue":          {"channel", "buffer", "fifo"},
	"embedding":      {"vector", "embed"},
	"vector":         {"embedding", "knn"},
	"search":         {"query", "find", "lookup"},
}

// maxSynonymsPerTerm bounds expansion noise per query term.
const maxSynonymsPerTerm = 3

// synonymsFor returns up to maxSynonymsPerTerm synonyms for a lowered term.
func synonymsFor(term string) []string {
	syns := CodeSynonyms[term]
	if len(syns) > maxSynonymsPerTerm {
		syns = syns[:maxSynonymsPerTerm]
	}
	return syns
}
