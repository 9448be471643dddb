package sqlinline

// QCreditPaymentOnce claims the order key and credits the account in one
// statement. A replayed order claims nothing and returns no row.
const QCreditPaymentOnce = `--sql 4b45b244-74a5-4b42-b9ad-49440771eb04
with claimed as (
    insert into processed_payments(order_key, user_id, amount, created_at)
    values ($1::text, $2::bigint, $3::bigint, now())
    on conflict (order_key) do nothing
    returning order_key, user_id, amount
),
upserted as (
    insert into accounts(user_id, balance, held, created_at, updated_at)
    select user_id, amount, 0, now(), now()
    from claimed
    on conflict (user_id) do update set
        balance = accounts.balance + excluded.balance,
        updated_at = now()
    returning user_id, balance
),
entry as (
    insert into ledger_entries(user_id, entry_type, amount, balance_after, reference, created_at)
    select u.user_id, 'CREDIT', c.amount, u.balance, 'payment:' || c.order_key, now()
    from upserted u
    join claimed c on c.user_id = u.user_id
)
select balance from upserted;
`

const QInsertPaymentLog = `--sql a9acc3c1-de63-4335-90fd-38b2ca7ef6d0
insert into payment_logs(user_id, amount, status, order_reference, provider_order_id, raw_payload, remote_ip, country, created_at)
values ($1::bigint, $2::bigint, $3::text, $4::text, $5::text, coalesce($6::jsonb, '{}'::jsonb), nullif($7::text, ''), nullif($8::text, ''), now());
`

const QSelectPaymentLogsByReference = `--sql 5758e72f-c3ae-4597-94ce-a53e071fb91a
select user_id, amount, status, order_reference, provider_order_id, created_at
from payment_logs
where order_reference = $1::text
order by created_at desc
limit $2::int;
`
