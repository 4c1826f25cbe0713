package appupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

type Release interface {
	Version() string
}

type Updater interface {
	DetectLatest(ctx context.Context, repo string) (Release, bool, error)
}

// Checker looks for a newer release at most once per calendar day. The day
// of the last check is the modification date of the marker file.
type Checker struct {
	CurrentVersion string
	Repository     string
	MarkerPath     string
	Updater        Updater
	Logger         *zap.Logger
	Now            func() time.Time
}

func (c Checker) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Due reports whether no check has been recorded today.
func (c Checker) Due() bool {
	info, err := os.Stat(c.MarkerPath)
	if err != nil {
		return true
	}
	return !sameDay(info.ModTime(), c.now())
}

func sameDay(a, b time.Time) bool {
	a, b = a.Local(), b.Local()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// touchMarker records today's check.
func (c Checker) touchMarker() error {
	f, err := os.OpenFile(c.MarkerPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("could not create version marker: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("could not close version marker: %w", err)
	}
	now := c.now()
	if err := os.Chtimes(c.MarkerPath, now, now); err != nil {
		return fmt.Errorf("could not update version marker: %w", err)
	}
	return nil
}

// HandleVersionCheck starts the daily check in the background. The channel
// yields the latest version when it is newer than the running one and is
// closed once the check is over. Every failure is logged and swallowed.
func HandleVersionCheck(ctx context.Context, c Checker) <-chan string {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resultChannel := make(chan string, 1)

	currentSemVer, err := semver.NewVersion(c.CurrentVersion)
	if err != nil {
		logger.Debug("running a dev build, skipping version check", zap.String("version", c.CurrentVersion))
		close(resultChannel)
		return resultChannel
	}
	if !c.Due() {
		logger.Debug("version already checked today", zap.String("marker", c.MarkerPath))
		close(resultChannel)
		return resultChannel
	}
	if err := c.touchMarker(); err != nil {
		logger.Warn("could not record version check", zap.Error(err))
	}

	go fetchLatestVersion(ctx, resultChannel, logger, c, currentSemVer)
	return resultChannel
}

func fetchLatestVersion(ctx context.Context, resultChannel chan string, logger *zap.Logger, c Checker, currentSemVer *semver.Version) {
	defer close(resultChannel)

	latest, found, err := c.Updater.DetectLatest(ctx, c.Repository)
	if err != nil {
		logger.Warn("error occurred while getting latest version from remote", zap.Error(err))
		return
	}
	if !found || latest == nil {
		logger.Warn("latest version could not be found", zap.String("repository", c.Repository))
		return
	}

	latestSemVer, err := semver.NewVersion(latest.Version())
	if err != nil {
		logger.Error("failed to parse latest version", zap.String("latest", latest.Version()), zap.Error(err))
		return
	}
	if latestSemVer.LessThanEqual(currentSemVer) {
		logger.Debug("already running the latest version", zap.String("current", currentSemVer.String()))
		return
	}

	logger.Info("new version available", zap.String("current", currentSemVer.String()), zap.String("latest", latestSemVer.String()))
	resultChannel <- latestSemVer.String()
}

var errCheckTimedOut = errors.New("version check timed out")

// Await waits up to timeout for the check started by HandleVersionCheck.
func Await(resultChannel <-chan string, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case latest, ok := <-resultChannel:
		if !ok {
			return "", nil
		}
		return latest, nil
	case <-timer.C:
		return "", errCheckTimedOut
	}
}

var (
	advisoryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	linkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// PrintAdvisory tells the user where to get a newer release.
func PrintAdvisory(w io.Writer, latest string, repository string) {
	fmt.Fprintln(w, advisoryStyle.Render("There is a new version available: "+latest))
	fmt.Fprintln(w, "You may download new version from project GitHub repository:")
	fmt.Fprintln(w, linkStyle.Render(ReleasesURL(repository)))
}

func ReleasesURL(repository string) string {
	return "https://github.com/" + repository + "/releases"
}
