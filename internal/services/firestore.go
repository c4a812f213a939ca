package services

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"civicfix-api/internal/errors"
	"civicfix-api/internal/models"
)

// IssueStore persists issues in Firestore. The validation pipeline only sees
// it through the HashSource interface; everything else is handler territory.
type IssueStore struct {
	client     *firestore.Client
	collection string
}

func NewIssueStore(client *firestore.Client, collection string) *IssueStore {
	return &IssueStore{
		client:     client,
		collection: collection,
	}
}

// CreateIssue stores a new issue and returns its document ID.
func (s *IssueStore) CreateIssue(ctx context.Context, issue *models.Issue) (string, error) {
	docRef, _, err := s.client.Collection(s.collection).Add(ctx, issue)
	if err != nil {
		return "", fmt.Errorf("failed to create issue: %w", err)
	}

	return docRef.ID, nil
}

// GetIssue retrieves an issue by document ID.
func (s *IssueStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	doc, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		// Check if document not found
		if status.Code(err) == codes.NotFound {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}

	var issue models.Issue
	if err := doc.DataTo(&issue); err != nil {
		return nil, fmt.Errorf("failed to parse issue: %w", err)
	}
	issue.ID = doc.Ref.ID

	return &issue, nil
}

// ListIssues retrieves issues newest-first with pagination.
func (s *IssueStore) ListIssues(ctx context.Context, limit int, page int) ([]*models.Issue, error) {
	// Validate pagination parameters
	if limit < 0 {
		return nil, fmt.Errorf("limit cannot be negative")
	}
	if page < 0 {
		return nil, fmt.Errorf("page cannot be negative")
	}

	query := s.client.Collection(s.collection).OrderBy("createdAt", firestore.Desc)

	if limit > 0 {
		// Cap maximum limit to prevent excessive memory usage
		if limit > 1000 {
			limit = 1000
		}
		query = query.Limit(limit)
		if page > 0 {
			query = query.Offset(page * limit)
		}
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var results []*models.Issue
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate issues: %w", err)
		}

		var issue models.Issue
		if err := doc.DataTo(&issue); err != nil {
			// Log but don't fail on individual document parse errors
			continue
		}
		issue.ID = doc.Ref.ID

		results = append(results, &issue)
	}

	return results, nil
}

// UpdateIssueStatus moves an issue to a new status and, when the issue is
// being resolved with a fresh photo, records the resolution photo URL.
func (s *IssueStore) UpdateIssueStatus(ctx context.Context, id, newStatus, resolvedPhotoURL string) error {
	updates := []firestore.Update{
		{Path: "status", Value: newStatus},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	}
	if resolvedPhotoURL != "" {
		updates = append(updates, firestore.Update{Path: "resolvedPhotoUrl", Value: resolvedPhotoURL})
	}

	_, err := s.client.Collection(s.collection).Doc(id).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.ErrNotFound
		}
		return fmt.Errorf("failed to update issue: %w", err)
	}

	return nil
}

// DeleteIssue removes an issue document by ID.
func (s *IssueStore) DeleteIssue(ctx context.Context, id string) error {
	_, err := s.client.Collection(s.collection).Doc(id).Delete(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete issue: %w", err)
	}

	return nil
}

// ListHashRecords returns the (issue ID, fingerprint) pairs of every stored
// issue that had an image. This is the read the duplicate search runs
// against; it reflects commits as of the query, nothing stricter.
func (s *IssueStore) ListHashRecords(ctx context.Context) ([]models.HashRecord, error) {
	iter := s.client.Collection(s.collection).Select("phash").Documents(ctx)
	defer iter.Stop()

	var records []models.HashRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate fingerprints: %w", err)
		}

		phash, _ := doc.Data()["phash"].(string)
		if phash == "" {
			continue
		}
		records = append(records, models.HashRecord{IssueID: doc.Ref.ID, PHash: phash})
	}

	return records, nil
}
