package main

import (
	"bytes"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/beaconpair/internal/device"
	"github.com/srg/beaconpair/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs the real command tree against a temp database and
// swappable scanner, MQTT and clock hooks.
type CommandTestSuite struct {
	suite.Suite

	helper *testutils.TestHelper
	dbPath string

	origScanner  func(*logrus.Logger, bool) device.Scanner
	origMQTT     func(string, string) (mqttClient, error)
	origTerminal func(io.Writer) bool
	origID       func() string
	origClock    func() time.Time
	ids          int
}

func (s *CommandTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.helper.DumpLogsOnFailure()
	s.dbPath = s.helper.TempDBPath()

	s.origScanner = scannerFactory
	s.origMQTT = mqttConnect
	s.origTerminal = isTerminal
	s.origID = newPairingID
	s.origClock = clock

	s.ids = 0
	newPairingID = func() string {
		s.ids++
		return "p" + string(rune('0'+s.ids))
	}
	clock = func() time.Time { return time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC) }
	isTerminal = func(io.Writer) bool { return false }
}

func (s *CommandTestSuite) TearDownTest() {
	scannerFactory = s.origScanner
	mqttConnect = s.origMQTT
	isTerminal = s.origTerminal
	newPairingID = s.origID
	clock = s.origClock
}

// ExecuteCommand runs the root command with args and returns stdout and the error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	cmd := newRootCmd()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		s.T().Logf("stderr:\n%s", stderr.String())
	}
	return stdout.String(), err
}

// MustExecute runs a command that MUST succeed and returns its stdout.
func (s *CommandTestSuite) MustExecute(args ...string) string {
	out, err := s.ExecuteCommand(args...)
	s.Require().NoError(err, "command %v MUST succeed", args)
	return out
}
