package flow

const (
	msgWelcome          = "Привет! Пришлите фото и опишите, что изменить, или оживите фото в короткое видео."
	msgCancelled        = "Действие отменено."
	msgSendPhoto        = "🖼 Пришлите фотографию, которую хотите изменить:"
	msgSendVideoPhoto   = "🎬 Пришлите фотографию, которую хотите оживить:"
	msgChooseModel      = "🤖 Выберите нейросеть для обработки:"
	msgChooseDuration   = "⏱ Выберите длительность видео:"
	msgEnterPrompt      = "✍️ Введите описание изменений:"
	msgEnterMotion      = "✍️ Опишите, как должно двигаться изображение:"
	msgUseMenu          = "Пожалуйста, воспользуйтесь меню."
	msgPhotoExpected    = "Пришлите, пожалуйста, фотографию."
	msgEmptyPrompt      = "Описание не может быть пустым."
	msgBusy             = "⏳ Предыдущая генерация ещё выполняется. Дождитесь результата."
	msgGenerating       = "🚀 Генерация %s... Пожалуйста, подождите."
	msgProviderFailed   = "❌ Ошибка нейросети. Попробуйте другой промпт. Баланс сохранен."
	msgTimedOut         = "⌛ Нейросеть не успела ответить. Попробуйте позже. Баланс сохранен."
	msgGenericError     = "❌ Произошла ошибка. Баланс сохранен."
	msgNotEnoughToStart = "❌ У вас недостаточно генераций. Нужно минимум %d, доступно %d."
	msgNeedCost         = "❌ Нужно %d ген. Ваш баланс меньше."
	msgBalance          = "👤 Ваш профиль\nID: %d\nБаланс: %d ⚡"
	msgChoosePackage    = "⚡ Выберите пакет генераций:"
	msgPackageChosen    = "💎 Вы выбрали: %d генераций\n💰 Сумма: %s₽\n\nНажмите кнопку ниже для оплаты:"
	msgCaption          = "✨ Готово!\n\nМодель: %s\nПромпт: %s\nСписано: %d ген.\nБаланс: %d ген."
	msgCredited         = "✅ Оплата прошла успешно!\n\nВам зачислено: %d ⚡\nВаш новый баланс: %d ⚡"
	msgReferrals        = "\n\n👥 Приглашено друзей: %d\n🎁 Приглашайте друзей и получайте %d%% от их покупок!"
	msgReferralLink     = "\n\n🔗 Ваша ссылка:\n%s"
	msgReferralBonus    = "🎁 Ваш друг пополнил баланс!\n\nВам начислено: %d ⚡\nВаш новый баланс: %d ⚡"
	msgDeliveryFailed   = "❌ Не удалось отправить результат. Генерации возвращены на баланс."
)
