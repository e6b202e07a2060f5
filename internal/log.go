package internal

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/jeffrom/fluentlog/config"
)

// output receives Debugf, Logf and error lines.
var output io.Writer = os.Stdout

func init() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
}

func getFileLine(distance int) (string, int) {
	_, file, line, ok := runtime.Caller(1 + distance)
	if !ok {
		file = "???"
		line = 0
	}

	parts := strings.Split(file, "/")
	file = parts[len(parts)-1]

	return file, line
}

func stdlog(distance int, s string, args ...interface{}) {
	file, line := getFileLine(distance)

	s = "%s %s " + s + "\n"
	linearg := fmt.Sprintf("%s:%d:", file, line)
	args = append([]interface{}{time.Now().Format("2006/01/02 15:04:05.000"), linearg}, args...)
	fmt.Fprintf(output, s, args...)
}

// Debugf prints a debug log message to stdout
func Debugf(conf *config.Config, s string, args ...interface{}) {
	if conf == nil || !conf.Verbose {
		return
	}

	stdlog(2, s, args...)
}

// DebugfDepth prints a debug log message to stdout
func DebugfDepth(conf *config.Config, depth int, s string, args ...interface{}) {
	if conf == nil || !conf.Verbose {
		return
	}

	stdlog(2+depth, s, args...)
}

// Logf logs to stdout regardless of verbosity. It is used for warnings.
func Logf(s string, args ...interface{}) {
	stdlog(2, s, args...)
}

// LogError logs the error if one occurred
func LogError(err error) {
	if err != nil {
		stdlog(2, "error: %+v", err)
	}
}

// IgnoreError logs the error, if one occurred, only in verbose mode
func IgnoreError(conf *config.Config, err error) {
	if err != nil && conf != nil && conf.Verbose {
		stdlog(2, "error ignored: %+v", err)
	}
}

// Prettybuf returns a human readable representation of a buffer that fits more
// or less on a log line
func Prettybuf(bufs ...[]byte) []byte {
	var flat []byte
	limit := 100
	for _, b := range bufs {
		flat = append(flat, b...)
	}
	if len(flat) > limit {
		var final []byte
		final = append(final, flat[:limit-5]...)
		final = append(final, []byte("...")...)
		final = append(final, flat[len(flat)-2:]...)
		return final
	}
	return flat
}
