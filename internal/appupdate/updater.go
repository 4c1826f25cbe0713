package appupdate

import (
	"context"

	"github.com/creativeprojects/go-selfupdate"
)

// DefaultUpdater asks GitHub for the latest published release.
type DefaultUpdater struct{}

func (DefaultUpdater) DetectLatest(ctx context.Context, repo string) (Release, bool, error) {
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(repo))
	if err != nil || !found {
		return nil, found, err
	}
	return latest, true, nil
}
