package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the cross-table invariants checked during stress runs. Each
// query selects violating rows; an empty result means the oracle holds.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_verdict_iff_resolved",
			SQL: `SELECT id, status, verdict FROM instances
                  WHERE (status = 'resolved') <> (verdict <> '')`,
		},
		{
			Name: "O2_journal_seq_gapless",
			SQL: `WITH seqs AS (
                      SELECT instance_id, seq,
                             LAG(seq) OVER (PARTITION BY instance_id ORDER BY seq) AS prev
                      FROM journal)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <> prev + 1`,
		},
		{
			Name: "O3_journal_starts_at_one",
			SQL: `SELECT instance_id, MIN(seq) FROM journal
                  GROUP BY instance_id HAVING MIN(seq) <> 1`,
		},
		{
			Name: "O4_dispute_no_counts_opens",
			SQL: `SELECT i.id, i.dispute_no FROM instances i
                  WHERE i.dispute_no <> (SELECT COUNT(*) FROM journal j
                                         WHERE j.instance_id = i.id AND j.op = 'open')`,
		},
		{
			Name: "O5_decides_never_outnumber_opens",
			SQL: `SELECT i.id FROM instances i
                  WHERE (SELECT COUNT(*) FROM journal j WHERE j.instance_id = i.id AND j.op = 'decide')
                      > (SELECT COUNT(*) FROM journal j WHERE j.instance_id = i.id AND j.op = 'open')`,
		},
		{
			Name: "O6_idle_means_untouched",
			SQL: `SELECT i.id FROM instances i
                  WHERE i.status = 'idle'
                    AND EXISTS (SELECT 1 FROM journal j WHERE j.instance_id = i.id)`,
		},
		{
			Name: "O7_journal_outbox_paired",
			SQL: `SELECT i.id FROM instances i
                  WHERE (SELECT COUNT(*) FROM journal j WHERE j.instance_id = i.id)
                     <> (SELECT COUNT(*) FROM outbox o WHERE o.payload->>'instance_id' = i.id::text)`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and a sample
// violating row) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
