package claude

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const dataPrefix = "data: "

type streamEvent struct {
	Type       string `json:"type"`
	Completion string `json:"completion"`
}

// DecodeEventStream assembles the full completion text from a server-sent
// event stream. Lines without the data prefix and lines whose payload is not
// valid JSON are skipped; a malformed line never aborts the rest of the
// stream. When sink is non-nil each completion chunk is echoed to it as it
// arrives.
func DecodeEventStream(r io.Reader, sink io.Writer) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, dataPrefix)), &ev); err != nil {
			continue
		}
		if ev.Type != "completion" {
			continue
		}
		out.WriteString(ev.Completion)
		if sink != nil {
			fmt.Fprint(sink, ev.Completion)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read event stream: %w", err)
	}
	return out.String(), nil
}
