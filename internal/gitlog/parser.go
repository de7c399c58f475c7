package gitlog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rohankatakam/lfca/internal/config"
	lfcaerrors "github.com/rohankatakam/lfca/internal/errors"
	"github.com/rohankatakam/lfca/internal/models"
)

// parseState enumerates the deterministic state machine states.
type parseState int

const (
	// After a header or a complete change: expect the next commit marker or a
	// status code.
	expectCommitOrStatus parseState = iota
	// After A/M/D/T/U/X/B: expect a file path.
	expectPath
	// After R/C: expect the old path.
	expectOldPath
	// After a valid old path under R/C: expect the new path.
	expectNewPath
)

// Header is one parsed commit header. Issues holds the validation issues
// recorded while parsing this commit (and any stray tokens before it).
type Header struct {
	OID         string
	Parents     []string
	AuthorName  string
	AuthorEmail string
	AuthoredTS  int64
	CommitterTS int64
	Subject     string
	Issues      []models.ValidationIssue
}

// IsMerge reports whether the commit has more than one parent.
func (h *Header) IsMerge() bool { return len(h.Parents) > 1 }

// Record converts the header to its columnar row form.
func (h *Header) Record() models.CommitRecord {
	return models.CommitRecord{
		OID:         h.OID,
		AuthorName:  h.AuthorName,
		AuthorEmail: h.AuthorEmail,
		AuthoredTS:  h.AuthoredTS,
		CommitterTS: h.CommitterTS,
		IsMerge:     h.IsMerge(),
		ParentCount: len(h.Parents),
		Subject:     h.Subject,
	}
}

// Change is one file change within a commit. OldPath is set only for
// rename/copy statuses.
type Change struct {
	Status  string
	Path    string
	OldPath string
}

// Parser consumes the NUL-delimited git log stream and yields structured
// commit+changes pairs. It never materializes the full log: tokens are read
// through a scanner whose buffer is reused across tokens, and completed
// commits are emitted as soon as each terminates.
type Parser struct {
	scanner *bufio.Scanner
	mode    string

	state          parseState
	cursor         int64
	pendingStatus  string
	pendingOldPath string

	header  *Header
	changes []Change
	issues  []models.ValidationIssue

	// pendingToken carries the tail of a glued subject token: git does not
	// NUL-terminate the pretty format, so the first status of a commit's
	// diff arrives appended to %s after a newline.
	pendingToken string
	hasPending   bool

	done bool
	err  error
}

// nulSplit is a bufio.SplitFunc yielding NUL-separated tokens, including a
// trailing partial token at EOF.
func nulSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// NewParser builds a parser over the raw log stream. mode is one of the
// config validation modes; it controls path strictness and whether
// error-severity issues abort the run.
func NewParser(r io.Reader, mode string) *Parser {
	scanner := bufio.NewScanner(r)
	scanner.Split(nulSplit)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Parser{
		scanner: scanner,
		mode:    mode,
		state:   expectCommitOrStatus,
	}
}

func (p *Parser) strictPaths() bool {
	return p.mode != config.ValidationPermissive
}

// recordIssue appends an issue and, in strict mode, converts error-severity
// issues into a run-aborting error.
func (p *Parser) recordIssue(issue models.ValidationIssue) error {
	p.issues = append(p.issues, issue)
	if p.mode == config.ValidationStrict && issue.Severity == models.SeverityError {
		return lfcaerrors.ValidationErrorf("validation error: %s", issue.Message)
	}
	return nil
}

func (p *Parser) issue(issueType, token, expected, message, severity string) models.ValidationIssue {
	iss := models.ValidationIssue{
		Type:     issueType,
		Severity: severity,
		Token:    token,
		Expected: expected,
		Message:  message,
		Cursor:   p.cursor,
	}
	if p.header != nil {
		iss.CommitOID = p.header.OID
		iss.Author = p.header.AuthorName
		iss.CommittedAt = p.header.CommitterTS
		iss.Subject = p.header.Subject
	}
	return iss
}

func (p *Parser) resetState() {
	p.state = expectCommitOrStatus
	p.pendingStatus = ""
	p.pendingOldPath = ""
}

// enterStatus transitions after accepting a status token.
func (p *Parser) enterStatus(token string) {
	p.pendingStatus = token
	if IsRenameStatus(token) {
		p.state = expectOldPath
	} else {
		p.state = expectPath
	}
}

// nextToken reads one token, tracking the cursor position. Returns false at
// end of stream.
func (p *Parser) nextToken() (string, bool) {
	if p.hasPending {
		p.hasPending = false
		return p.pendingToken, true
	}
	if !p.scanner.Scan() {
		return "", false
	}
	p.cursor++
	return string(p.scanner.Bytes()), true
}

// finishCommit packages the current commit for yielding, recording an
// incomplete-change issue when the state machine was mid-change. A trailing
// partial record at end of stream is error-severity; mid-stream truncation is
// a warning since the next marker resynchronizes anyway.
func (p *Parser) finishCommit(atEOF bool) (*Header, []Change, error) {
	if p.state != expectCommitOrStatus {
		severity := models.SeverityWarning
		if atEOF {
			severity = models.SeverityError
		}
		issue := p.issue(
			models.IssueIncompleteChange,
			p.pendingStatus,
			"complete status+path sequence",
			fmt.Sprintf("commit ended with incomplete change: status=%s", p.pendingStatus),
			severity,
		)
		if err := p.recordIssue(issue); err != nil {
			return nil, nil, err
		}
	}
	header := p.header
	header.Issues = p.issues
	changes := p.changes
	p.header = nil
	p.changes = nil
	p.issues = nil
	p.resetState()
	return header, changes, nil
}

// parseHeader reads the seven header fields following a commit marker.
// Returns nil (no error) when the commit id is malformed: the issue is
// recorded and parsing resynchronizes at the next marker.
func (p *Parser) parseHeader() (*Header, error) {
	read := func() string {
		tok, ok := p.nextToken()
		if !ok {
			return ""
		}
		return tok
	}

	oid := read()
	parentsRaw := read()
	authorName := read()
	authorEmail := read()
	authoredTS, _ := strconv.ParseInt(strings.TrimSpace(read()), 10, 64)
	committerTS, _ := strconv.ParseInt(strings.TrimSpace(read()), 10, 64)
	subject := read()

	// The pretty format is not NUL-terminated: when the commit has diff
	// output, the first status token arrives glued to the subject after a
	// newline. Split it off and replay it through the state machine.
	if idx := strings.IndexByte(subject, '\n'); idx >= 0 {
		rest := subject[idx+1:]
		subject = subject[:idx]
		if rest != "" {
			p.pendingToken = rest
			p.hasPending = true
		}
	}

	if !IsValidCommitOID(oid) {
		issue := models.ValidationIssue{
			Type:     models.IssueInvalidCommitOID,
			Severity: models.SeverityError,
			Token:    oid,
			Expected: "40-character hex commit hash",
			Message:  fmt.Sprintf("invalid commit OID: %q", oid),
			Cursor:   p.cursor,
		}
		if err := p.recordIssue(issue); err != nil {
			return nil, err
		}
		return nil, nil
	}

	var parents []string
	if parentsRaw != "" {
		parents = strings.Fields(parentsRaw)
	}

	return &Header{
		OID:         oid,
		Parents:     parents,
		AuthorName:  authorName,
		AuthorEmail: authorEmail,
		AuthoredTS:  authoredTS,
		CommitterTS: committerTS,
		Subject:     subject,
	}, nil
}

// handlePathFailure records an invalid-path issue and applies the bounded
// resynchronization policy: a token that is itself a valid status opens a new
// change; anything else drops back to expect-commit-or-status.
func (p *Parser) handlePathFailure(token, expected, message string) error {
	if err := p.recordIssue(p.issue(models.IssueInvalidPath, token, expected, message, models.SeverityWarning)); err != nil {
		return err
	}
	if IsValidStatus(token) {
		p.enterStatus(token)
	} else {
		p.resetState()
	}
	return nil
}

// Next returns the next complete commit, its changes, and any error. It
// returns io.EOF after the final commit has been yielded.
func (p *Parser) Next() (*Header, []Change, error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	if p.done {
		return nil, nil, io.EOF
	}

	for {
		token, ok := p.nextToken()
		if !ok {
			break
		}

		if token == "" {
			continue
		}

		// A marker always starts a new commit and resets the state machine.
		if token == CommitMarker {
			var yield *Header
			var yieldChanges []Change
			if p.header != nil {
				h, c, err := p.finishCommit(false)
				if err != nil {
					p.err = err
					return nil, nil, err
				}
				yield = h
				yieldChanges = c
			}

			header, err := p.parseHeader()
			if err != nil {
				p.err = err
				return nil, nil, err
			}
			if header != nil {
				p.header = header
			}
			p.resetState()

			if yield != nil {
				return yield, yieldChanges, nil
			}
			continue
		}

		// Stray tokens before the first valid header are unattributable.
		if p.header == nil {
			continue
		}

		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		switch p.state {
		case expectCommitOrStatus:
			if !IsValidStatus(token) {
				issue := p.issue(
					models.IssueInvalidStatus,
					token,
					"A|M|D|T|U|X|B|R###|C###",
					fmt.Sprintf("invalid git status code: %q", token),
					models.SeverityWarning,
				)
				if err := p.recordIssue(issue); err != nil {
					p.err = err
					return nil, nil, err
				}
				// Stay in the same state and try to resync on the next token.
				continue
			}
			p.enterStatus(token)

		case expectPath:
			if !IsValidPath(token, p.strictPaths()) {
				if err := p.handlePathFailure(token, "valid file path",
					fmt.Sprintf("invalid file path after %s: %q", p.pendingStatus, token)); err != nil {
					p.err = err
					return nil, nil, err
				}
				continue
			}
			p.changes = append(p.changes, Change{Status: p.pendingStatus, Path: token})
			p.resetState()

		case expectOldPath:
			if !IsValidPath(token, p.strictPaths()) {
				if err := p.handlePathFailure(token, "valid old path for rename",
					fmt.Sprintf("invalid old path after %s: %q", p.pendingStatus, token)); err != nil {
					p.err = err
					return nil, nil, err
				}
				continue
			}
			p.pendingOldPath = token
			p.state = expectNewPath

		case expectNewPath:
			if !IsValidPath(token, p.strictPaths()) {
				if err := p.handlePathFailure(token, "valid new path for rename",
					fmt.Sprintf("invalid new path after %s: %q", p.pendingOldPath, token)); err != nil {
					p.err = err
					return nil, nil, err
				}
				continue
			}
			p.changes = append(p.changes, Change{Status: p.pendingStatus, Path: token, OldPath: p.pendingOldPath})
			p.resetState()
		}
	}

	if err := p.scanner.Err(); err != nil {
		p.err = fmt.Errorf("scanning git log output: %w", err)
		return nil, nil, p.err
	}

	p.done = true

	// Yield the final commit, flagging a trailing partial change.
	if p.header != nil {
		h, c, err := p.finishCommit(true)
		if err != nil {
			p.err = err
			return nil, nil, err
		}
		return h, c, nil
	}

	return nil, nil, io.EOF
}

// PendingIssues returns issues recorded after the last yielded commit - e.g.
// a trailing header with a malformed commit id leaves its issue with no
// commit to attach to. Valid once Next has returned io.EOF.
func (p *Parser) PendingIssues() []models.ValidationIssue {
	return p.issues
}
