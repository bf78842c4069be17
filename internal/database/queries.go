package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/voxera/roomserver/internal/types"
)

const (
	participantColumns = "p.id, p.room_id, p.user_id, a.username, p.role, p.is_muted, p.is_speaking, p.joined_at, p.left_at"

	insertParticipantQuery = "INSERT INTO room_participants (room_id, user_id, role, joined_at) " +
		"VALUES ($1, $2, $3, $4) RETURNING id, room_id, user_id, role, is_muted, is_speaking, joined_at"
)

func (db *PgRoomRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, username, email",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
	)

	return u, err
}

func (db *PgRoomRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET username = $2, password_hash = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING id, username, email",
		params.UserId,
		params.Username,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
	)

	return u, err
}

func (db *PgRoomRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgRoomRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
	)

	return u, err
}

// CreateRoom inserts the room and its host participant in a single
// transaction so the exactly-one-host invariant holds from the first
// committed state.
func (db *PgRoomRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO rooms (external_id, title, description, host_id, room_type, audio_mode, max_participants, is_active, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $8) "+
			"RETURNING id, external_id, title, description, host_id, room_type, audio_mode, max_participants, is_active, seq_id, created_at, updated_at",
		params.ExternalId,
		params.Title,
		params.Description,
		params.HostId,
		params.RoomType,
		params.AudioMode,
		params.MaxParticipants,
		time.Now().UTC(),
	)

	var room Room
	err = scanRoom(res, &room)
	if err != nil {
		return Room{}, err
	}

	_, err = tx.Exec(
		insertParticipantQuery,
		room.Id,
		params.HostId,
		types.RoleHost,
		time.Now().UTC(),
	)
	if err != nil {
		return Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner, room *Room) error {
	return row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Title,
		&room.Description,
		&room.HostId,
		&room.RoomType,
		&room.AudioMode,
		&room.MaxParticipants,
		&room.IsActive,
		&room.SeqId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
}

func (db *PgRoomRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, title, description, host_id, room_type, audio_mode, max_participants, is_active, seq_id, created_at, updated_at "+
			"FROM rooms WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var room Room
	err := scanRoom(row, &room)

	return room, err
}

func (db *PgRoomRepository) ListActiveRooms(params ListRoomsParams) ([]Room, error) {
	query := "SELECT id, external_id, title, description, host_id, room_type, audio_mode, max_participants, is_active, seq_id, created_at, updated_at " +
		"FROM rooms WHERE is_active = TRUE"

	args := []any{}
	if params.RoomType != "" {
		args = append(args, params.RoomType)
		query += fmt.Sprintf(" AND room_type = $%d", len(args))
	}
	if params.AudioMode != "" {
		args = append(args, params.AudioMode)
		query += fmt.Sprintf(" AND audio_mode = $%d", len(args))
	}

	limit := params.Limit
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, params.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms = make([]Room, 0, limit)
	for rows.Next() {
		var room Room
		if err = scanRoom(rows, &room); err != nil {
			return nil, err
		}

		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// ListHostlessActiveRooms finds active rooms whose recorded host has no
// live membership. These indicate a crash between the succession writes
// and are repaired by re-running succession.
func (db *PgRoomRepository) ListHostlessActiveRooms() ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT r.id, r.external_id, r.title, r.description, r.host_id, r.room_type, r.audio_mode, r.max_participants, r.is_active, r.seq_id, r.created_at, r.updated_at " +
			"FROM rooms r WHERE r.is_active = TRUE AND NOT EXISTS (" +
			"SELECT 1 FROM room_participants p WHERE p.room_id = r.id AND p.role = 'host' AND p.left_at IS NULL)",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err = scanRoom(rows, &room); err != nil {
			return nil, err
		}

		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// EndRoom deactivates the room and closes out every live membership in
// one transaction, so no participant remains with a null left_at on an
// inactive room.
func (db *PgRoomRepository) EndRoom(roomId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	_, err = tx.Exec("UPDATE rooms SET is_active = FALSE, updated_at = $2 WHERE id = $1", roomId, now)
	if err != nil {
		return err
	}

	_, err = tx.Exec("UPDATE room_participants SET left_at = $2 WHERE room_id = $1 AND left_at IS NULL", roomId, now)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// JoinRoom admits a user as a listener. The room row is locked for the
// duration of the transaction so concurrent joins on the same room
// cannot over-admit past max_participants or insert duplicate live
// memberships.
func (db *PgRoomRepository) JoinRoom(roomId, userId int) (Participant, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Participant{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var (
		maxParticipants int
		isActive        bool
	)
	err = tx.QueryRow("SELECT max_participants, is_active FROM rooms WHERE id = $1 FOR UPDATE", roomId).
		Scan(&maxParticipants, &isActive)
	if err != nil {
		if err == sql.ErrNoRows {
			err = types.ErrRoomNotFound
		}
		return Participant{}, err
	}

	if !isActive {
		err = types.ErrRoomInactive
		return Participant{}, err
	}

	var exists bool
	err = tx.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM room_participants WHERE room_id = $1 AND user_id = $2 AND left_at IS NULL)",
		roomId, userId,
	).Scan(&exists)
	if err != nil {
		return Participant{}, err
	}
	if exists {
		err = types.ErrAlreadyMember
		return Participant{}, err
	}

	var count int
	err = tx.QueryRow(
		"SELECT COUNT(*) FROM room_participants WHERE room_id = $1 AND left_at IS NULL",
		roomId,
	).Scan(&count)
	if err != nil {
		return Participant{}, err
	}
	if count >= maxParticipants {
		err = types.ErrRoomFull
		return Participant{}, err
	}

	var p Participant
	err = tx.QueryRow(
		insertParticipantQuery,
		roomId,
		userId,
		types.RoleListener,
		time.Now().UTC(),
	).Scan(&p.Id, &p.RoomId, &p.UserId, &p.Role, &p.IsMuted, &p.IsSpeaking, &p.JoinedAt)
	if err != nil {
		return Participant{}, err
	}

	if err = tx.Commit(); err != nil {
		return Participant{}, err
	}

	return p, nil
}

func scanParticipant(row rowScanner, p *Participant) error {
	return row.Scan(
		&p.Id,
		&p.RoomId,
		&p.UserId,
		&p.Username,
		&p.Role,
		&p.IsMuted,
		&p.IsSpeaking,
		&p.JoinedAt,
		&p.LeftAt,
	)
}

func (db *PgRoomRepository) GetActiveParticipant(roomId, userId int) (Participant, error) {
	row := db.conn.QueryRow(
		"SELECT "+participantColumns+" FROM room_participants p "+
			"JOIN accounts a ON p.user_id = a.id "+
			"WHERE p.room_id = $1 AND p.user_id = $2 AND p.left_at IS NULL LIMIT 1",
		roomId,
		userId,
	)

	var p Participant
	err := scanParticipant(row, &p)

	return p, err
}

func (db *PgRoomRepository) GetParticipantById(participantId int) (Participant, error) {
	row := db.conn.QueryRow(
		"SELECT "+participantColumns+" FROM room_participants p "+
			"JOIN accounts a ON p.user_id = a.id "+
			"WHERE p.id = $1 LIMIT 1",
		participantId,
	)

	var p Participant
	err := scanParticipant(row, &p)

	return p, err
}

func (db *PgRoomRepository) ListActiveParticipants(roomId int) ([]Participant, error) {
	rows, err := db.conn.Query(
		"SELECT "+participantColumns+" FROM room_participants p "+
			"JOIN accounts a ON p.user_id = a.id "+
			"WHERE p.room_id = $1 AND p.left_at IS NULL ORDER BY p.joined_at ASC",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants = make([]Participant, 0)
	for rows.Next() {
		var p Participant
		if err = scanParticipant(rows, &p); err != nil {
			return nil, err
		}

		participants = append(participants, p)
	}

	return participants, rows.Err()
}

func (db *PgRoomRepository) EarliestActiveCoHost(roomId int) (Participant, error) {
	row := db.conn.QueryRow(
		"SELECT "+participantColumns+" FROM room_participants p "+
			"JOIN accounts a ON p.user_id = a.id "+
			"WHERE p.room_id = $1 AND p.role = 'co-host' AND p.left_at IS NULL "+
			"ORDER BY p.joined_at ASC LIMIT 1",
		roomId,
	)

	var p Participant
	err := scanParticipant(row, &p)

	return p, err
}

func (db *PgRoomRepository) LeaveParticipant(participantId int) error {
	res, err := db.conn.Exec(
		"UPDATE room_participants SET left_at = $2 WHERE id = $1 AND left_at IS NULL",
		participantId,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrNotAMember
	}

	return nil
}

func (db *PgRoomRepository) UpdateParticipantRole(participantId int, role types.Role) error {
	res, err := db.conn.Exec(
		"UPDATE room_participants SET role = $2 WHERE id = $1 AND left_at IS NULL",
		participantId,
		role,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrParticipantNotFound
	}

	return nil
}

// TransferHost promotes a participant to host and points the room's
// host_id at them in the same transaction. If demoteParticipantId is
// non-zero the outgoing host is demoted to co-host as part of the same
// commit, so readers never observe zero or two hosts.
func (db *PgRoomRepository) TransferHost(roomId, newHostParticipantId, demoteParticipantId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var newHostUserId int
	err = tx.QueryRow(
		"SELECT user_id FROM room_participants WHERE id = $1 AND room_id = $2 AND left_at IS NULL",
		newHostParticipantId,
		roomId,
	).Scan(&newHostUserId)
	if err != nil {
		if err == sql.ErrNoRows {
			err = types.ErrParticipantNotFound
		}
		return err
	}

	if demoteParticipantId != 0 {
		_, err = tx.Exec(
			"UPDATE room_participants SET role = $2 WHERE id = $1",
			demoteParticipantId,
			types.RoleCoHost,
		)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(
		"UPDATE room_participants SET role = $2 WHERE id = $1",
		newHostParticipantId,
		types.RoleHost,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		"UPDATE rooms SET host_id = $2, updated_at = $3 WHERE id = $1",
		roomId,
		newHostUserId,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgRoomRepository) UpdateAudioState(participantId int, isMuted, isSpeaking bool) error {
	res, err := db.conn.Exec(
		"UPDATE room_participants SET is_muted = $2, is_speaking = $3 WHERE id = $1 AND left_at IS NULL",
		participantId,
		isMuted,
		isSpeaking,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrParticipantNotFound
	}

	return nil
}

func (db *PgRoomRepository) CreateMessage(msg Message) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("UPDATE rooms SET seq_id = $1 WHERE id = $2", msg.SeqId, msg.RoomId)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		"INSERT INTO messages (seq_id, room_id, user_id, content, kind, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6)",
		msg.SeqId,
		msg.RoomId,
		msg.UserId,
		msg.Content,
		msg.Kind,
		msg.CreatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgRoomRepository) GetMessages(roomId, since, before, limit int) ([]Message, error) {
	var upper, lower int = 1<<31 - 1, 0
	if before > 0 {
		upper = before - 1
	}

	if since > 0 {
		lower = since
	}

	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(
		"SELECT id, seq_id, room_id, user_id, content, kind, created_at FROM messages "+
			"WHERE room_id = $1 AND seq_id BETWEEN $2 AND $3 ORDER BY seq_id DESC LIMIT $4",
		roomId,
		lower,
		upper,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.Id, &msg.SeqId, &msg.RoomId, &msg.UserId, &msg.Content, &msg.Kind, &msg.CreatedAt); err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgRoomRepository) GetGift(giftId int) (Gift, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, icon, price, category, is_active FROM gifts WHERE id = $1 AND is_active = TRUE LIMIT 1",
		giftId,
	)

	var g Gift
	err := row.Scan(
		&g.Id,
		&g.Name,
		&g.Icon,
		&g.Price,
		&g.Category,
		&g.IsActive,
	)

	return g, err
}

func (db *PgRoomRepository) ListGifts() ([]Gift, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, icon, price, category, is_active FROM gifts WHERE is_active = TRUE ORDER BY price ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gifts = make([]Gift, 0)
	for rows.Next() {
		var g Gift
		if err = rows.Scan(&g.Id, &g.Name, &g.Icon, &g.Price, &g.Category, &g.IsActive); err != nil {
			return nil, err
		}

		gifts = append(gifts, g)
	}

	return gifts, rows.Err()
}

func (db *PgRoomRepository) CreateGiftTransaction(params GiftTransactionParams) (int, error) {
	res := db.conn.QueryRow(
		"INSERT INTO gift_transactions (gift_id, sender_id, receiver_id, room_id, quantity, total_price, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id",
		params.GiftId,
		params.SenderId,
		params.ReceiverId,
		params.RoomId,
		params.Quantity,
		params.TotalPrice,
		time.Now().UTC(),
	)

	var id int
	err := res.Scan(&id)

	return id, err
}
