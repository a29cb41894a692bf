package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"

	"github.com/sells-group/history-cli/internal/model"
)

const pgHistoryColumns = `id, user_id, answer, question_file, comment, polished_answer, score, created_at`

func (s *PostgresStore) EnsureUser(ctx context.Context, username, email string) (*model.User, bool, error) {
	existing, err := s.GetUser(ctx, username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	u := model.User{
		ID:        uuid.New().String(),
		Username:  username,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Username, u.Email, u.CreatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrapf(err, "postgres: insert user %s", username)
	}
	return &u, true, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, created_at FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if isNoRows(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get user %s", username)
	}
	return &u, nil
}

func (s *PostgresStore) SaveHistory(ctx context.Context, h *model.History) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO histories (id, user_id, answer, question_file, comment, polished_answer, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.ID, h.UserID, h.Answer, h.QuestionFile, h.Comment, h.PolishedAnswer, h.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert history")
}

func (s *PostgresStore) ListHistories(ctx context.Context, userID string, page, perPage int) (*model.HistoryPage, error) {
	page, perPage = normalizePage(page, perPage)

	var total int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM histories WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, eris.Wrap(err, "postgres: count histories")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+pgHistoryColumns+` FROM histories WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list histories")
	}
	defer rows.Close()

	out := &model.HistoryPage{Histories: []model.History{}, Pagination: model.NewPagination(page, perPage, int(total))}
	for rows.Next() {
		h, err := scanPgHistory(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		out.Histories = append(out.Histories, *h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list histories iterate")
}

func (s *PostgresStore) GetHistory(ctx context.Context, id, userID string) (*model.History, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgHistoryColumns+` FROM histories WHERE id = $1 AND user_id = $2`, id, userID,
	)
	h, err := scanPgHistory(row)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get history %s", id)
	}
	return h, nil
}

func (s *PostgresStore) DeleteHistory(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM histories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete history %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPgHistory(row scannable) (*model.History, error) {
	var (
		h              model.History
		questionFile   pgtype.Text
		comment        pgtype.Text
		polishedAnswer pgtype.Text
		score          pgtype.Int8
	)
	if err := row.Scan(&h.ID, &h.UserID, &h.Answer, &questionFile, &comment, &polishedAnswer, &score, &h.CreatedAt); err != nil {
		return nil, err
	}
	h.QuestionFile = questionFile.String
	h.Comment = pgText(comment)
	h.PolishedAnswer = pgText(polishedAnswer)
	h.Score = pgInt(score)
	return &h, nil
}
