package feed

import (
	"context"
	"fmt"
	"net/url"

	"github.com/moov-data/pkg/star/models"
)

const datasetsPath = "/api/datasets/1.0/"

// MetadataFetcher reads the catalog entry of a dataset.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, dataset string) (*models.DatasetMetadata, error)
}

// FetchMetadata returns the portal's description of dataset. Unlike Fetch,
// failures are returned to the caller.
func (c *Client) FetchMetadata(ctx context.Context, dataset string) (*models.DatasetMetadata, error) {
	endpoint := c.baseURL + datasetsPath + url.PathEscape(dataset) + "/"

	var result models.DatasetMetadata
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, fmt.Errorf("fetching metadata of %s: %w", dataset, err)
	}
	if result.DatasetID == "" {
		return nil, fmt.Errorf("metadata of %s has no dataset id", dataset)
	}

	c.logger.Debug("Metadata fetched",
		"dataset", dataset,
		"modified", result.Metas.Modified,
		"records", result.Metas.RecordsCount)

	return &result, nil
}
