package sqlinline

const QSelectAccount = `--sql 483da9ec-5b06-42ca-b1bb-e907b022fa33
select user_id, balance, held, created_at, updated_at
from accounts
where user_id = $1::bigint
limit 1;
`

const QCreditAccount = `--sql d27d9f01-b723-45aa-b19d-63d0fab71ba0
with upserted as (
    insert into accounts(user_id, balance, held, created_at, updated_at)
    values ($1::bigint, $2::bigint, 0, now(), now())
    on conflict (user_id) do update set
        balance = accounts.balance + excluded.balance,
        updated_at = now()
    returning user_id, balance
),
entry as (
    insert into ledger_entries(user_id, entry_type, amount, balance_after, reference, created_at)
    select user_id, 'CREDIT', $2::bigint, balance, $3::text, now()
    from upserted
)
select balance from upserted;
`

// QDebitAccount only matches when the available balance covers the amount, so
// an empty result means the debit was refused.
const QDebitAccount = `--sql 56bac73c-e08a-4a92-91df-055a0373da54
with updated as (
    update accounts
    set balance = balance - $2::bigint,
        updated_at = now()
    where user_id = $1::bigint
      and balance - held >= $2::bigint
    returning user_id, balance
),
entry as (
    insert into ledger_entries(user_id, entry_type, amount, balance_after, reference, created_at)
    select user_id, 'DEBIT', $2::bigint, balance, $3::text, now()
    from updated
)
select balance from updated;
`
