package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/timeflow"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// readSecret returns value as a password credential. When value is empty the
// secret is read without echo from a terminal, or as one line from a pipe.
func readSecret(cmd *cobra.Command, value, prompt string) (appliance.Credential, error) {
	if value != "" {
		return appliance.NewPasswordCredential([]byte(value)), nil
	}

	var secret []byte
	fd := int(os.Stdin.Fd())
	if isTerminal(fd) {
		w := cmd.ErrOrStderr()
		if _, err := fmt.Fprintf(w, "%s: ", prompt); err != nil {
			return appliance.Credential{}, err
		}
		pw, err := readPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return appliance.Credential{}, fmt.Errorf("cannot read %s: %w", prompt, err)
		}
		secret = pw
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			return appliance.Credential{}, engine.NewConfigError(fmt.Sprintf("no %s given", prompt), err).
				WithCode(engine.ErrCodeValidation)
		}
		secret = []byte(strings.TrimRight(line, "\r\n"))
	}

	if len(secret) == 0 {
		return appliance.Credential{}, engine.NewConfigError(fmt.Sprintf("%s must not be empty", prompt), nil).
			WithCode(engine.ErrCodeValidation)
	}
	return appliance.NewPasswordCredential(secret), nil
}

// pointFlags registers --timestamp-type and --timestamp on cmd.
type pointFlags struct {
	kind  string
	value string
}

func (p *pointFlags) register(cmd *cobra.Command, defaultKind string) {
	cmd.Flags().StringVar(&p.kind, "timestamp-type", defaultKind, "point in time type (snapshot, time, bookmark, location)")
	cmd.Flags().StringVar(&p.value, "timestamp", "", "point in time: LATEST, @snapshot, a timestamp, a bookmark or timeflow@location")
}

// point parses the flags. Nil is returned when --timestamp was not given so
// the operation can apply its own default.
func (p *pointFlags) point() (timeflow.PointInTime, error) {
	if p.value == "" {
		return nil, nil
	}
	return timeflow.Parse(p.kind, p.value)
}

// splitList splits a comma separated flag value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
