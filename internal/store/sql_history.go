package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/history-cli/internal/model"
)

const sqlHistoryColumns = `id, user_id, answer, question_file, comment, polished_answer, score, created_at`

func (s *SQLStore) EnsureUser(ctx context.Context, username, email string) (*model.User, bool, error) {
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
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.CreatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrapf(err, "%s: insert user %s", s.dialect, username)
	}
	return &u, true, nil
}

func (s *SQLStore) GetUser(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, created_at FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "%s: get user %s", s.dialect, username)
	}
	return &u, nil
}

func (s *SQLStore) SaveHistory(ctx context.Context, h *model.History) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO histories (id, user_id, answer, question_file, comment, polished_answer, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.UserID, h.Answer, h.QuestionFile, stringOrNil(h.Comment), stringOrNil(h.PolishedAnswer), h.CreatedAt,
	)
	return eris.Wrapf(err, "%s: insert history", s.dialect)
}

func (s *SQLStore) ListHistories(ctx context.Context, userID string, page, perPage int) (*model.HistoryPage, error) {
	page, perPage = normalizePage(page, perPage)

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM histories WHERE user_id = ?`, userID,
	).Scan(&total); err != nil {
		return nil, eris.Wrapf(err, "%s: count histories", s.dialect)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqlHistoryColumns+` FROM histories WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: list histories", s.dialect)
	}
	defer rows.Close()

	out := &model.HistoryPage{Histories: []model.History{}, Pagination: model.NewPagination(page, perPage, total)}
	for rows.Next() {
		h, err := scanSQLHistory(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: scan history", s.dialect)
		}
		out.Histories = append(out.Histories, *h)
	}
	return out, eris.Wrapf(rows.Err(), "%s: list histories iterate", s.dialect)
}

func (s *SQLStore) GetHistory(ctx context.Context, id, userID string) (*model.History, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqlHistoryColumns+` FROM histories WHERE id = ? AND user_id = ?`, id, userID,
	)
	h, err := scanSQLHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "%s: get history %s", s.dialect, id)
	}
	return h, nil
}

func (s *SQLStore) DeleteHistory(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM histories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return eris.Wrapf(err, "%s: delete history %s", s.dialect, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLHistory(row scannable) (*model.History, error) {
	var (
		h              model.History
		questionFile   sql.NullString
		comment        sql.NullString
		polishedAnswer sql.NullString
		score          sql.NullInt64
	)
	if err := row.Scan(&h.ID, &h.UserID, &h.Answer, &questionFile, &comment, &polishedAnswer, &score, &h.CreatedAt); err != nil {
		return nil, err
	}
	h.QuestionFile = questionFile.String
	h.Comment = nullString(comment)
	h.PolishedAnswer = nullString(polishedAnswer)
	h.Score = nullInt(score)
	return &h, nil
}
