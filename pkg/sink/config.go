package sink

import (
	"fmt"
	"os"
	"strings"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up the InfluxDB sink from flags. The write token can
// come from a flag or from a secret file (-influx-token-file), matching
// how deployments mount it.
func Configured() *Influx {
	url := lflag.String("influx-url", "http://localhost:8086", "InfluxDB base URL")
	token := lflag.String("influx-token", "", "InfluxDB write token")
	tokenFile := lflag.String("influx-token-file", "", "Path of a file holding the InfluxDB write token; used when -influx-token is empty")
	org := lflag.String("influx-org", "enphase", "InfluxDB organization")
	bucket := lflag.String("influx-bucket", "solar", "InfluxDB bucket")

	// the flags resolve inside lflag.Do, after this returns, so hand back
	// a struct that is filled in then
	s := &Influx{}

	lflag.Do(func() {
		writeToken := *token
		if writeToken == "" && *tokenFile != "" {
			body, err := os.ReadFile(*tokenFile)
			if err != nil {
				panic(fmt.Sprintf("failed to read influx token file: %v", err))
			}
			writeToken = strings.TrimSpace(string(body))
		}
		if writeToken == "" {
			panic("missing influx token: set -influx-token or -influx-token-file")
		}
		*s = *NewInflux(*url, writeToken, *org, *bucket)
	})

	return s
}
