// Package jsurl builds the javascript: commands the host loads into the page
// and classifies the URLs the page navigates to in order to reach the host.
package jsurl

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// OverrideScheme prefixes every URL the page uses to signal the host.
	OverrideScheme = "yy://"
	// ReturnPrefix marks a URL carrying the result of a javascript: call,
	// formatted as yy://return/<function>/<data>.
	ReturnPrefix = "yy://return/"

	JavascriptScheme = "javascript:"

	bridgeObject  = "javascript:WebViewJavascriptBridge."
	handleMessage = "javascript:WebViewJavascriptBridge._handleMessageFromObjC('%s');"

	// FetchQueue asks the page to hand over its queued messages.
	FetchQueue = "javascript:WebViewJavascriptBridge._fetchQueue();"
)

// Kind is the classification of an intercepted URL.
type Kind int

const (
	// Ignore is ordinary navigation the bridge does not consume.
	Ignore Kind = iota
	// Command asks the host to flush the page queue.
	Command
	// Return carries the result of an earlier javascript: call.
	Return
)

func (k Kind) String() string {
	switch k {
	case Command:
		return "command"
	case Return:
		return "return"
	default:
		return "ignore"
	}
}

var jsEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)

// HandleMessage wraps an encoded message in the command delivering it to the
// page. The payload is escaped for a single-quoted script string literal.
func HandleMessage(encoded string) string {
	return fmt.Sprintf(handleMessage, jsEscaper.Replace(encoded))
}

// LoadScript returns a command inserting a script element for src ahead of
// the page's first script.
func LoadScript(src string) string {
	js := `var newscript = document.createElement("script");`
	js += `newscript.src="` + src + `";`
	js += `document.scripts[0].parentNode.insertBefore(newscript,document.scripts[0]);`
	return JavascriptScheme + js
}

var callSuffix = regexp.MustCompile(`\(.*\);`)

// FunctionName extracts the bridge function called by a javascript: URL;
// "javascript:WebViewJavascriptBridge._fetchQueue();" yields "_fetchQueue".
func FunctionName(jsURL string) string {
	return callSuffix.ReplaceAllString(strings.Replace(jsURL, bridgeObject, "", 1), "")
}

// Unescape percent-decodes raw with query semantics. When raw is not a valid
// escape sequence it is returned unchanged along with the error.
func Unescape(raw string) (string, error) {
	s, err := url.QueryUnescape(raw)
	if err != nil {
		return raw, err
	}
	return s, nil
}

// Classify reports the kind of an already decoded URL.
func Classify(u string) Kind {
	switch {
	case strings.HasPrefix(u, ReturnPrefix):
		return Return
	case strings.HasPrefix(u, OverrideScheme):
		return Command
	default:
		return Ignore
	}
}

// ParseReturn splits a return URL into the function name and its data. The
// data is everything after the first slash following the function name, so
// payloads containing slashes survive intact. ok is false when u is not a
// return URL or names no function.
func ParseReturn(u string) (function, data string, ok bool) {
	if !strings.HasPrefix(u, ReturnPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(u, ReturnPrefix)
	function, data, _ = strings.Cut(rest, "/")
	if function == "" {
		return "", "", false
	}
	return function, data, true
}

// ReturnURL builds the URL the page uses to answer a javascript: call.
func ReturnURL(function, data string) string {
	return ReturnPrefix + function + "/" + data
}
