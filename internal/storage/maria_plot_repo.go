package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AgaveCraft/PlotSquared/internal/plot"
	_ "github.com/go-sql-driver/mysql"
)

// MariaPlotRepo реализует plot.Repository для MariaDB/MySQL.
// Плот хранится строкой таблицы plots, наборы игроков и кубы - JSON-снимком.
type MariaPlotRepo struct {
	db *sql.DB
}

// NewMariaPlotRepo подключается к базе и создаёт таблицу, если её нет.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
func NewMariaPlotRepo(ctx context.Context, dsn string) (*MariaPlotRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaPlotRepo{db: db}
	if err := repo.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}
	return repo, nil
}

func (r *MariaPlotRepo) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS plots (
			world      VARCHAR(64)  NOT NULL,
			plot_x     INT          NOT NULL,
			plot_y     INT          NOT NULL,
			owner      CHAR(36)     NOT NULL,
			data       JSON         NOT NULL,
			updated_at TIMESTAMP    DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE    CURRENT_TIMESTAMP,
			PRIMARY KEY (world, plot_x, plot_y),
			INDEX idx_owner (owner)
		) ENGINE=InnoDB
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы plots: %w", err)
	}
	return nil
}

// Save сохраняет плот через INSERT ... ON DUPLICATE KEY UPDATE.
func (r *MariaPlotRepo) Save(ctx context.Context, p *plot.Plot) error {
	if err := validatePlot(p); err != nil {
		return err
	}
	snap := p.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("ошибка сериализации плота %s: %w", p.ID(), err)
	}

	query := `
		INSERT INTO plots (world, plot_x, plot_y, owner, data)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			owner = VALUES(owner),
			data = VALUES(data),
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = r.db.ExecContext(ctx, query, snap.World, snap.ID.X, snap.ID.Y, snap.Owner, data)
	if err != nil {
		return fmt.Errorf("ошибка сохранения плота %s: %w", plotKey{snap.World, snap.ID}, err)
	}
	return nil
}

func (r *MariaPlotRepo) Load(ctx context.Context, area *plot.Area, id plot.ID) (*plot.Plot, error) {
	query := `SELECT data FROM plots WHERE world = ? AND plot_x = ? AND plot_y = ?`

	var data []byte
	err := r.db.QueryRowContext(ctx, query, area.World, id.X, id.Y).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, plot.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки плота %s: %w", plotKey{area.World, id}, err)
	}
	return decodePlot(area, data)
}

func (r *MariaPlotRepo) Delete(ctx context.Context, world string, id plot.ID) error {
	query := `DELETE FROM plots WHERE world = ? AND plot_x = ? AND plot_y = ?`

	result, err := r.db.ExecContext(ctx, query, world, id.X, id.Y)
	if err != nil {
		return fmt.Errorf("ошибка удаления плота %s: %w", plotKey{world, id}, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения количества затронутых строк: %w", err)
	}
	if rows == 0 {
		return plot.ErrNotFound
	}
	return nil
}

func (r *MariaPlotRepo) List(ctx context.Context, area *plot.Area) ([]*plot.Plot, error) {
	query := `SELECT data FROM plots WHERE world = ? ORDER BY plot_x, plot_y`

	rows, err := r.db.QueryContext(ctx, query, area.World)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения плотов мира %s: %w", area.World, err)
	}
	defer rows.Close()

	var out []*plot.Plot
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		p, err := decodePlot(area, data)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close закрывает соединение с базой данных.
func (r *MariaPlotRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func decodePlot(area *plot.Area, data []byte) (*plot.Plot, error) {
	var snap plot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("ошибка десериализации плота: %w", err)
	}
	return plot.FromSnapshot(area, snap)
}
