package probe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nwnotary/notary-server/pkg/observation"
)

var fingerprintRe = regexp.MustCompile(`^[a-f0-9]{2}(:[a-f0-9]{2}){15}$`)

// sshKeyTypes is the set of key types probed, in order, per spec §4.3.
// The first one that yields a fingerprint wins.
var sshKeyTypes = []string{"rsa", "dsa", "rsa1"}

// SSHProbe fetches a host's SSH key the way ssh-keyscan/ssh-keygen
// normally cooperate: ssh-keyscan writes a known_hosts-format line to a
// file, and ssh-keygen -l -f summarizes that line into a fingerprint.
type SSHProbe struct {
	// Timeout bounds total wall time for one Probe call.
	Timeout time.Duration
	// KeyscanPath overrides the ssh-keyscan binary looked up on PATH.
	KeyscanPath string
	// KeygenPath overrides the ssh-keygen binary looked up on PATH.
	KeygenPath string
}

var _ Prober = (*SSHProbe)(nil)

// Probe returns the first fingerprint obtained across {rsa, dsa, rsa1},
// in order; a key type that the host doesn't offer or that ssh-keygen
// can't parse is skipped rather than failing the whole probe.
func (p *SSHProbe) Probe(ctx context.Context, service observation.Service) (observation.Key, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	keyscan := p.KeyscanPath
	if keyscan == "" {
		keyscan = "ssh-keyscan"
	}
	keygen := p.KeygenPath
	if keygen == "" {
		keygen = "ssh-keygen"
	}

	var lastErr error
	for _, keyType := range sshKeyTypes {
		fp, err := p.scanOne(ctx, keyscan, keygen, service, keyType)
		if err == nil {
			return observation.Key(fp), nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (p *SSHProbe) scanOne(ctx context.Context, keyscan, keygen string, service observation.Service, keyType string) (string, error) {
	tmp, err := os.CreateTemp("", "nwnotary-sshscan-")
	if err != nil {
		return "", newError(KindOther, StateConnecting, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	defer tmp.Close()

	keyscanCmd := exec.CommandContext(ctx, keyscan, "-t", keyType, "-p", strconv.Itoa(service.Port), service.Host)
	keyscanCmd.Stdout = tmp
	if err := keyscanCmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", newError(KindTimeout, StateConnecting, ctx.Err())
		}
		return "", newError(KindOther, StateConnecting, fmt.Errorf("ssh-keyscan -t %s: %w", keyType, err))
	}

	var out bytes.Buffer
	keygenCmd := exec.CommandContext(ctx, keygen, "-l", "-f", tmpPath)
	keygenCmd.Stdout = &out
	if err := keygenCmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", newError(KindTimeout, StateReadingRecords, ctx.Err())
		}
		return "", newError(KindOther, StateReadingRecords, fmt.Errorf("ssh-keygen -l -f: %w", err))
	}

	fields := strings.Fields(out.String())
	if len(fields) < 2 {
		return "", newError(KindInvalidFingerprint, StateDone, fmt.Errorf("unparseable ssh-keygen output: %q", out.String()))
	}
	fp := fields[1]
	if !fingerprintRe.MatchString(fp) {
		return "", newError(KindInvalidFingerprint, StateDone, fmt.Errorf("invalid fingerprint %q", fp))
	}
	return fp, nil
}
