package sqlinline

const QCreateHold = `--sql b190a6b1-ef93-4757-af94-a98119153391
with reserved as (
    update accounts
    set held = held + $3::bigint,
        updated_at = now()
    where user_id = $2::bigint
      and balance - held >= $3::bigint
    returning user_id
)
insert into balance_holds(id, user_id, amount, model_key, status, created_at)
select $1::uuid, user_id, $3::bigint, $4::text, 'HELD', now()
from reserved
returning created_at;
`

const QCaptureHold = `--sql 9d65e60e-aa93-4411-ab65-10a48db381a5
with closed as (
    update balance_holds
    set status = 'CAPTURED', settled_at = now()
    where id = $1::uuid
      and status = 'HELD'
    returning id, user_id, amount
),
charged as (
    update accounts a
    set balance = a.balance - c.amount,
        held = a.held - c.amount,
        updated_at = now()
    from closed c
    where a.user_id = c.user_id
    returning a.user_id, a.balance, c.amount, c.id
),
entry as (
    insert into ledger_entries(user_id, entry_type, amount, balance_after, reference, created_at)
    select user_id, 'CAPTURE', amount, balance, 'hold:' || id::text, now()
    from charged
)
select balance from charged;
`

const QReleaseHold = `--sql d5f8e48b-4ca0-4c26-8c7e-ca1218fd8193
with closed as (
    update balance_holds
    set status = 'RELEASED', settled_at = now()
    where id = $1::uuid
      and status = 'HELD'
    returning user_id, amount
)
update accounts a
set held = a.held - c.amount,
    updated_at = now()
from closed c
where a.user_id = c.user_id
returning a.user_id;
`

const QReleaseStaleHolds = `--sql 8b8c7db3-21e8-428e-9a84-3e1524f671b3
with stale as (
    select id
    from balance_holds
    where status = 'HELD'
      and created_at < now() - ($1::bigint * interval '1 second')
    order by created_at asc
    for update skip locked
    limit $2::int
),
closed as (
    update balance_holds h
    set status = 'RELEASED', settled_at = now()
    from stale s
    where h.id = s.id
    returning h.id, h.user_id, h.amount
),
per_user as (
    select user_id, sum(amount)::bigint as amount
    from closed
    group by user_id
),
restored as (
    update accounts a
    set held = a.held - p.amount,
        updated_at = now()
    from per_user p
    where a.user_id = p.user_id
    returning a.user_id
)
select id::text, user_id, amount from closed;
`
