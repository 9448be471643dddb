package sqlinline

// QInsertReferral links a user to a referrer only on first contact: never for
// self-referrals or for users that already hold an account.
const QInsertReferral = `--sql 7e0c5b1a-3f4d-4c8e-9a62-d1b7f08e2c45
insert into referrals(user_id, referrer_id, created_at)
select $1::bigint, $2::bigint, now()
where $1::bigint <> $2::bigint
  and not exists (select 1 from accounts where user_id = $1::bigint)
on conflict (user_id) do nothing
returning user_id;
`

const QCountReferrals = `--sql 2b9f6e07-8c31-4d5a-b7e4-65a0c91d3f28
select count(*)
from referrals
where referrer_id = $1::bigint;
`

const QSelectReferrer = `--sql c4a81d3e-5f72-4b09-8e16-0d9b2a7c6f51
select referrer_id
from referrals
where user_id = $1::bigint
limit 1;
`
